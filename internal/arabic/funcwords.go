package arabic

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/function_words.yaml
var functionWordsYAML []byte

// FunctionWords is the closed-class word set consulted before any clitic
// decomposition. Membership is tested on normalized bare forms.
type FunctionWords struct {
	words map[string]bool
}

type functionWordsFile struct {
	FunctionWords []string `yaml:"function_words"`
}

// DefaultFunctionWords loads the embedded MSA function-word list.
func DefaultFunctionWords() *FunctionWords {
	fw, err := parseFunctionWords(functionWordsYAML)
	if err != nil {
		// The embedded file is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded function word list invalid: %v", err))
	}
	return fw
}

// LoadFunctionWords reads a function-word list from a YAML file on disk,
// for deployments that extend the embedded set.
func LoadFunctionWords(path string) (*FunctionWords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read function words: %w", err)
	}
	return parseFunctionWords(data)
}

func parseFunctionWords(data []byte) (*FunctionWords, error) {
	var f functionWordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse function words: %w", err)
	}
	if len(f.FunctionWords) == 0 {
		return nil, fmt.Errorf("function word list is empty")
	}
	words := make(map[string]bool, len(f.FunctionWords))
	for _, w := range f.FunctionWords {
		words[Normalize(w)] = true
	}
	return &FunctionWords{words: words}, nil
}

// Contains reports whether the token is a function word. The surface is
// normalized before the membership test.
func (fw *FunctionWords) Contains(surface string) bool {
	return fw.words[Normalize(surface)]
}

// Len returns the number of entries, for diagnostics.
func (fw *FunctionWords) Len() int { return len(fw.words) }

// Package review dispatches sentence-level reviews: one comprehension
// signal fans out to per-lemma rating events with primary/collateral credit,
// all committed in a single transaction and idempotent under replay.
package review

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"murajaa/internal/srs"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

// SentenceRequest is one sentence review submission.
type SentenceRequest struct {
	SentenceID       *types.SentenceID
	PrimaryLemmaID   types.LemmaID
	Signal           types.Comprehension
	MissedLemmaIDs   []types.LemmaID
	ConfusedFeatures []string
	ResponseMs       *int
	SessionID        string
	Mode             types.ReviewMode
	ClientReviewID   string
	ReviewedAt       time.Time // zero means now
}

// WordResult is the per-lemma outcome of one fan-out.
type WordResult struct {
	LemmaID  types.LemmaID
	Rating   types.Rating
	NewState types.KnowledgeState
	Credit   types.CreditType
	NextDue  *time.Time
}

// SentenceResult is the dispatcher's reply.
type SentenceResult struct {
	Duplicate   bool
	WordResults []WordResult
}

// Dispatcher owns review fan-out over the store and scheduler.
type Dispatcher struct {
	store  *store.Store
	params srs.Params
	log    *zap.Logger
}

func NewDispatcher(st *store.Store, params srs.Params, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: st, params: params, log: log}
}

// SubmitSentence applies one sentence review. Replays of the same
// client_review_id return the duplicate marker without mutation; a mid-fanout
// crash leaves per-lemma writes independently replayable via the
// ":<lemma_id>" suffix on each sub-review.
func (d *Dispatcher) SubmitSentence(ctx context.Context, req SentenceRequest) (*SentenceResult, error) {
	if !req.Signal.Valid() {
		return nil, fmt.Errorf("invalid comprehension signal %q", req.Signal)
	}
	now := req.ReviewedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	dup, err := d.store.HasSentenceClientID(ctx, req.ClientReviewID)
	if err != nil {
		return nil, err
	}
	if dup {
		return &SentenceResult{Duplicate: true, WordResults: []WordResult{}}, nil
	}

	lemmaOrder, sentence, err := d.resolveLemmas(ctx, req)
	if err != nil {
		return nil, err
	}
	missed := make(map[types.LemmaID]bool, len(req.MissedLemmaIDs))
	for _, id := range req.MissedLemmaIDs {
		missed[id] = true
	}

	res := &SentenceResult{}
	err = d.store.WithTx(ctx, func(q *store.Queries) error {
		for _, lemmaID := range lemmaOrder {
			wr, err := d.applyWord(ctx, q, req, lemmaID, missed[lemmaID], now)
			if err != nil {
				return err
			}
			if wr != nil {
				res.WordResults = append(res.WordResults, *wr)
			}
		}

		if err := q.AppendSentenceReviewLog(ctx, &types.SentenceReviewLog{
			SentenceID:     req.SentenceID,
			PrimaryLemmaID: req.PrimaryLemmaID,
			Signal:         req.Signal,
			Mode:           req.Mode,
			ResponseMs:     req.ResponseMs,
			SessionID:      req.SessionID,
			ClientReviewID: req.ClientReviewID,
			ReviewedAt:     now,
		}); err != nil {
			return err
		}

		if sentence != nil {
			if err := q.TouchSentenceShown(ctx, sentence.ID, req.Mode, req.Signal, now); err != nil {
				return err
			}
			if err := d.updateGrammar(ctx, q, sentence, req, now); err != nil {
				return err
			}
		}

		return q.AppendEvent(ctx, "sentence_review", map[string]any{
			"session_id": req.SessionID,
			"signal":     string(req.Signal),
			"mode":       string(req.Mode),
			"words":      len(res.WordResults),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolveLemmas builds the fixed per-word iteration order: sentence words by
// position (content words with a lemma), with the primary lemma prepended
// when it is not in the sentence.
func (d *Dispatcher) resolveLemmas(ctx context.Context, req SentenceRequest) ([]types.LemmaID, *types.Sentence, error) {
	var order []types.LemmaID
	var sentence *types.Sentence
	seen := make(map[types.LemmaID]bool)

	if req.SentenceID != nil {
		s, err := d.store.GetSentence(ctx, *req.SentenceID)
		if err != nil {
			return nil, nil, err
		}
		sentence = s
		words, err := d.store.SentenceWords(ctx, s.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, w := range words {
			if w.LemmaID == nil || seen[*w.LemmaID] {
				continue
			}
			seen[*w.LemmaID] = true
			order = append(order, *w.LemmaID)
		}
	}
	if req.PrimaryLemmaID != 0 && !seen[req.PrimaryLemmaID] {
		order = append([]types.LemmaID{req.PrimaryLemmaID}, order...)
	}
	if len(order) == 0 {
		return nil, nil, store.ErrLemmaNotFound
	}
	return order, sentence, nil
}

// ratingFor is the per-word rating policy derived from the sentence signal.
func ratingFor(signal types.Comprehension, missed bool) types.Rating {
	switch signal {
	case types.CompNoIdea:
		return types.RatingAgain
	case types.CompUnderstood:
		return types.RatingGood
	default: // partial, grammar_confused
		if missed {
			return types.RatingAgain
		}
		return types.RatingGood
	}
}

// applyWord runs one per-lemma sub-review inside the transaction. A nil
// result means the word was skipped (suspended, or an already-replayed
// sub-review).
func (d *Dispatcher) applyWord(ctx context.Context, q *store.Queries, req SentenceRequest,
	lemmaID types.LemmaID, missed bool, now time.Time) (*WordResult, error) {

	subID := ""
	if req.ClientReviewID != "" {
		subID = fmt.Sprintf("%s:%d", req.ClientReviewID, lemmaID)
		dup, err := q.HasClientReviewID(ctx, subID)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, nil
		}
	}

	k, err := q.GetKnowledge(ctx, lemmaID)
	switch {
	case err == store.ErrKnowledgeNotFound:
		return d.recordEncounter(ctx, q, req, lemmaID, nil, subID, now)
	case err != nil:
		return nil, err
	}

	switch {
	case k.State == types.StateSuspended:
		return nil, nil
	case k.State == types.StateAcquiring:
		return d.applyAcquiring(ctx, q, req, k, missed, subID, now)
	case k.Card != nil:
		return d.applySRS(ctx, q, req, k, missed, subID, now)
	default:
		// Encountered (or new): no schedulable card, record the exposure.
		return d.recordEncounter(ctx, q, req, lemmaID, k, subID, now)
	}
}

func (d *Dispatcher) creditFor(req SentenceRequest, lemmaID types.LemmaID, fallback types.CreditType) types.CreditType {
	if lemmaID == req.PrimaryLemmaID {
		return types.CreditPrimary
	}
	return fallback
}

func (d *Dispatcher) applySRS(ctx context.Context, q *store.Queries, req SentenceRequest,
	k *types.Knowledge, missed bool, subID string, now time.Time) (*WordResult, error) {

	rating := ratingFor(req.Signal, missed)
	out := d.params.ApplySRS(k, rating, now)
	if err := q.PutKnowledge(ctx, k); err != nil {
		return nil, err
	}
	if err := q.AppendReviewLog(ctx, &types.ReviewLog{
		LemmaID:        k.LemmaID,
		Rating:         rating,
		ReviewedAt:     now,
		ResponseMs:     req.ResponseMs,
		Mode:           req.Mode,
		Signal:         req.Signal,
		Credit:         d.creditFor(req, k.LemmaID, types.CreditCollateral),
		SentenceID:     req.SentenceID,
		SessionID:      req.SessionID,
		ClientReviewID: subID,
		CardBefore:     out.CardBefore,
	}); err != nil {
		return nil, err
	}
	due := out.NextDue
	return &WordResult{
		LemmaID:  k.LemmaID,
		Rating:   rating,
		NewState: out.StateAfter,
		Credit:   d.creditFor(req, k.LemmaID, types.CreditCollateral),
		NextDue:  &due,
	}, nil
}

func (d *Dispatcher) applyAcquiring(ctx context.Context, q *store.Queries, req SentenceRequest,
	k *types.Knowledge, missed bool, subID string, now time.Time) (*WordResult, error) {

	rating := ratingFor(req.Signal, missed)
	days, err := q.DistinctReviewDays(ctx, k.LemmaID)
	if err != nil {
		return nil, err
	}
	out := d.params.ApplyAcquisition(k, rating, days, now)
	if err := q.PutKnowledge(ctx, k); err != nil {
		return nil, err
	}
	if err := q.AppendReviewLog(ctx, &types.ReviewLog{
		LemmaID:        k.LemmaID,
		Rating:         rating,
		ReviewedAt:     now,
		ResponseMs:     req.ResponseMs,
		Mode:           req.Mode,
		Signal:         req.Signal,
		Credit:         d.creditFor(req, k.LemmaID, types.CreditAcquisition),
		SentenceID:     req.SentenceID,
		SessionID:      req.SessionID,
		ClientReviewID: subID,
		IsAcquisition:  true,
		BoxBefore:      out.BoxBefore,
		BoxAfter:       out.BoxAfter,
	}); err != nil {
		return nil, err
	}
	if out.Graduated {
		if err := q.AppendEvent(ctx, "word_graduated", map[string]any{
			"lemma_id": int64(k.LemmaID),
		}, now); err != nil {
			return nil, err
		}
	}
	due := out.NextDue
	return &WordResult{
		LemmaID:  k.LemmaID,
		Rating:   rating,
		NewState: out.StateAfter,
		Credit:   d.creditFor(req, k.LemmaID, types.CreditAcquisition),
		NextDue:  &due,
	}, nil
}

// recordEncounter creates or touches a non-scheduled knowledge row. No SRS
// review is submitted: passive exposure is not a rating.
func (d *Dispatcher) recordEncounter(ctx context.Context, q *store.Queries, req SentenceRequest,
	lemmaID types.LemmaID, k *types.Knowledge, subID string, now time.Time) (*WordResult, error) {

	if k == nil {
		k = &types.Knowledge{LemmaID: lemmaID, State: types.StateEncountered}
	}
	if k.State == types.StateNew {
		k.State = types.StateEncountered
	}
	k.TotalEncounters++
	if err := q.PutKnowledge(ctx, k); err != nil {
		return nil, err
	}
	return &WordResult{
		LemmaID:  lemmaID,
		NewState: k.State,
		Credit:   d.creditFor(req, lemmaID, types.CreditEncounter),
	}, nil
}

// updateGrammar applies the sentence's comprehension outcome to every
// grammar feature it carries, plus an explicit confused bump for features
// the learner flagged that the sentence is not tagged with.
func (d *Dispatcher) updateGrammar(ctx context.Context, q *store.Queries,
	sentence *types.Sentence, req SentenceRequest, now time.Time) error {

	flagged := make(map[string]bool, len(req.ConfusedFeatures))
	for _, f := range req.ConfusedFeatures {
		flagged[f] = true
	}
	onSentence := make(map[string]bool, len(sentence.GrammarFeatures))

	correct := req.Signal == types.CompUnderstood
	confusedSignal := req.Signal == types.CompGrammarConfused
	for _, f := range sentence.GrammarFeatures {
		onSentence[f] = true
		confused := confusedSignal && (len(flagged) == 0 || flagged[f])
		if err := q.BumpGrammarExposure(ctx, f, correct, confused, now); err != nil {
			return err
		}
	}
	for f := range flagged {
		if onSentence[f] {
			continue
		}
		if err := q.BumpGrammarExposure(ctx, f, false, true, now); err != nil {
			return err
		}
	}
	return nil
}

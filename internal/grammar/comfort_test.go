package grammar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"murajaa/internal/types"
)

func TestComfortBounds(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)

	assert.Zero(t, Comfort(0, 0, nil, now))
	assert.Zero(t, Comfort(10, 0, &recent, now))

	c := Comfort(100, 100, &recent, now)
	assert.LessOrEqual(t, c, 1.0)
	assert.Greater(t, c, 0.9)
}

func TestComfortMonotoneInCorrect(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)

	prev := -1.0
	for correct := 0; correct <= 10; correct++ {
		c := Comfort(10, correct, &recent, now)
		assert.GreaterOrEqual(t, c, prev, "correct=%d", correct)
		prev = c
	}
}

func TestComfortDecaysWithStaleness(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	stale := now.Add(-60 * 24 * time.Hour)

	fresh := Comfort(10, 9, &recent, now)
	decayed := Comfort(10, 9, &stale, now)
	assert.Less(t, decayed, fresh)
	assert.Greater(t, decayed, 0.0)
}

func TestComfortGraceWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	within := now.Add(-5 * 24 * time.Hour)
	fresh := now.Add(-time.Hour)

	assert.InDelta(t, Comfort(10, 9, &fresh, now), Comfort(10, 9, &within, now), 1e-9,
		"no decay inside the grace window")
}

func TestMultiplierTiers(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	introduced := now.Add(-30 * 24 * time.Hour)

	assert.Equal(t, MultiplierUnfamiliar, Multiplier(nil, now))

	seen := &types.GrammarExposure{TimesSeen: 10, TimesCorrect: 9, LastSeenAt: &recent}
	assert.Equal(t, MultiplierUnfamiliar, Multiplier(seen, now), "never introduced")

	young := &types.GrammarExposure{TimesSeen: 1, TimesCorrect: 1, LastSeenAt: &recent, IntroducedAt: &introduced}
	assert.Equal(t, MultiplierUnfamiliar, Multiplier(young, now), "too little history")

	shaky := &types.GrammarExposure{TimesSeen: 10, TimesCorrect: 3, LastSeenAt: &recent, IntroducedAt: &introduced}
	assert.Equal(t, MultiplierIntroduced, Multiplier(shaky, now))

	solid := &types.GrammarExposure{TimesSeen: 20, TimesCorrect: 19, LastSeenAt: &recent, IntroducedAt: &introduced}
	assert.Equal(t, MultiplierComfortable, Multiplier(solid, now))
}

func TestNeedsRefresher(t *testing.T) {
	assert.False(t, NeedsRefresher(nil))
	assert.False(t, NeedsRefresher(&types.GrammarExposure{TimesSeen: 4, TimesConfused: 4}))
	assert.False(t, NeedsRefresher(&types.GrammarExposure{TimesSeen: 10, TimesConfused: 2}))
	assert.True(t, NeedsRefresher(&types.GrammarExposure{TimesSeen: 10, TimesConfused: 3}))
}

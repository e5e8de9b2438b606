// Package grammar derives per-feature comfort from exposure counters. The
// comfort score feeds the sentence-score grammar multiplier and the
// confused-feature resurfacing list.
package grammar

import (
	"math"
	"time"

	"murajaa/internal/types"
)

const (
	// Saturation point: comfort approaches the raw accuracy as seen counts
	// pass this many exposures.
	comfortHalfSeen = 4.0

	// Staleness decay: full comfort inside the grace window, then an
	// exponential half-life.
	staleGraceDays    = 7.0
	staleHalfLifeDays = 30.0

	// Multiplier tiers for sentence scoring.
	MultiplierUnfamiliar  = 0.8
	MultiplierIntroduced  = 1.0
	MultiplierComfortable = 1.1

	highComfortThreshold = 0.6
	unfamiliarSeenFloor  = 3

	// Resurfacing gate: a feature confusing the learner this often, with
	// enough history to trust the rate, goes on the refresher list.
	RefresherConfusionRate = 0.3
	RefresherMinSeen       = 5
)

// Comfort maps exposure counters to a score in [0, 1]. It is non-decreasing
// in times_correct, saturates with repeated exposure, and decays once the
// feature has not been seen for a while.
func Comfort(timesSeen, timesCorrect int, lastSeenAt *time.Time, now time.Time) float64 {
	if timesSeen <= 0 {
		return 0
	}
	acc := float64(timesCorrect) / float64(timesSeen)
	seen := float64(timesSeen)
	base := acc * seen / (seen + comfortHalfSeen)

	if lastSeenAt != nil {
		days := now.Sub(*lastSeenAt).Hours() / 24
		if days > staleGraceDays {
			base *= math.Pow(0.5, (days-staleGraceDays)/staleHalfLifeDays)
		}
	}
	return math.Min(1, math.Max(0, base))
}

// ComfortOf is Comfort applied to an exposure row; nil means never seen.
func ComfortOf(g *types.GrammarExposure, now time.Time) float64 {
	if g == nil {
		return 0
	}
	return Comfort(g.TimesSeen, g.TimesCorrect, g.LastSeenAt, now)
}

// Multiplier returns the sentence-score weight for one feature. Features
// never introduced, or with too little history to judge, score below par;
// comfortable features score slightly above.
func Multiplier(g *types.GrammarExposure, now time.Time) float64 {
	if g == nil || g.IntroducedAt == nil || g.TimesSeen < unfamiliarSeenFloor {
		return MultiplierUnfamiliar
	}
	if ComfortOf(g, now) >= highComfortThreshold {
		return MultiplierComfortable
	}
	return MultiplierIntroduced
}

// NeedsRefresher reports whether a feature's confusion rate warrants
// resurfacing it in a session.
func NeedsRefresher(g *types.GrammarExposure) bool {
	return g != nil &&
		g.TimesSeen >= RefresherMinSeen &&
		g.ConfusionRate() >= RefresherConfusionRate
}

package review

import (
	"context"
	"fmt"
	"time"

	"murajaa/internal/srs"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

// LemmaRequest is one direct per-lemma review (acquisition drills, word-only
// items, re-introduction results).
type LemmaRequest struct {
	LemmaID        types.LemmaID
	Rating         types.Rating
	Mode           types.ReviewMode
	ResponseMs     *int
	SessionID      string
	ClientReviewID string
	ReviewedAt     time.Time // zero means now
}

// LemmaResult reports one applied (or replayed) lemma review.
type LemmaResult struct {
	Duplicate bool
	LemmaID   types.LemmaID
	NewState  types.KnowledgeState
	NextDue   *time.Time
	Graduated bool
	Box       int
}

// SubmitLemma applies one rating to a single lemma, routing acquiring words
// through the Leitner boxes and everything else through the SRS card.
func (d *Dispatcher) SubmitLemma(ctx context.Context, req LemmaRequest) (*LemmaResult, error) {
	if !req.Rating.Valid() {
		return nil, fmt.Errorf("invalid rating %d", req.Rating)
	}
	now := req.ReviewedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if req.ClientReviewID != "" {
		dup, err := d.store.HasClientReviewID(ctx, req.ClientReviewID)
		if err != nil {
			return nil, err
		}
		if dup {
			k, err := d.store.GetKnowledge(ctx, req.LemmaID)
			if err != nil {
				return nil, err
			}
			return &LemmaResult{Duplicate: true, LemmaID: k.LemmaID, NewState: k.State, Box: k.AcquisitionBox}, nil
		}
	}

	res := &LemmaResult{LemmaID: req.LemmaID}
	err := d.store.WithTx(ctx, func(q *store.Queries) error {
		k, err := q.GetKnowledge(ctx, req.LemmaID)
		if err != nil {
			return err
		}
		if k.State == types.StateSuspended {
			return fmt.Errorf("lemma %d is suspended", req.LemmaID)
		}

		var out srs.Outcome
		isAcq := k.State == types.StateAcquiring
		if isAcq {
			days, err := q.DistinctReviewDays(ctx, req.LemmaID)
			if err != nil {
				return err
			}
			out = d.params.ApplyAcquisition(k, req.Rating, days, now)
		} else {
			if k.Card == nil {
				return fmt.Errorf("lemma %d has no schedulable card: %w", req.LemmaID, store.ErrKnowledgeNotFound)
			}
			out = d.params.ApplySRS(k, req.Rating, now)
		}
		if err := q.PutKnowledge(ctx, k); err != nil {
			return err
		}

		credit := types.CreditPrimary
		if isAcq {
			credit = types.CreditAcquisition
		}
		if err := q.AppendReviewLog(ctx, &types.ReviewLog{
			LemmaID:        req.LemmaID,
			Rating:         req.Rating,
			ReviewedAt:     now,
			ResponseMs:     req.ResponseMs,
			Mode:           req.Mode,
			Credit:         credit,
			SessionID:      req.SessionID,
			ClientReviewID: req.ClientReviewID,
			IsAcquisition:  isAcq,
			CardBefore:     out.CardBefore,
			BoxBefore:      out.BoxBefore,
			BoxAfter:       out.BoxAfter,
		}); err != nil {
			return err
		}
		if out.Graduated {
			if err := q.AppendEvent(ctx, "word_graduated", map[string]any{
				"lemma_id": int64(req.LemmaID),
			}, now); err != nil {
				return err
			}
		}

		res.NewState = out.StateAfter
		res.Graduated = out.Graduated
		res.Box = out.BoxAfter
		due := out.NextDue
		res.NextDue = &due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StartAcquisition introduces a word into the Leitner phase, creating its
// knowledge row if the word has never been observed.
func (d *Dispatcher) StartAcquisition(ctx context.Context, lemmaID types.LemmaID, source string, dueImmediately bool, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return d.store.WithTx(ctx, func(q *store.Queries) error {
		k, err := q.GetKnowledge(ctx, lemmaID)
		if err == store.ErrKnowledgeNotFound {
			k = &types.Knowledge{LemmaID: lemmaID}
		} else if err != nil {
			return err
		}
		if k.State == types.StateAcquiring {
			return nil
		}
		srs.StartAcquisition(k, source, dueImmediately, now)
		if err := q.PutKnowledge(ctx, k); err != nil {
			return err
		}
		return q.AppendEvent(ctx, "word_introduced", map[string]any{
			"lemma_id": int64(lemmaID),
			"source":   source,
		}, now)
	})
}

// ReintroOutcome maps a re-introduction card answer to a rating.
const (
	ReintroRemember  = "remember"
	ReintroShowAgain = "show_again"
)

// SubmitReintro records the learner's answer on a re-introduction card:
// remembering counts as Good, asking to see it again counts as Again.
func (d *Dispatcher) SubmitReintro(ctx context.Context, lemmaID types.LemmaID, result string,
	sessionID, clientReviewID string, now time.Time) (*LemmaResult, error) {

	var rating types.Rating
	switch result {
	case ReintroRemember:
		rating = types.RatingGood
	case ReintroShowAgain:
		rating = types.RatingAgain
	default:
		return nil, fmt.Errorf("invalid reintro result %q", result)
	}
	return d.SubmitLemma(ctx, LemmaRequest{
		LemmaID:        lemmaID,
		Rating:         rating,
		Mode:           types.ModeReintro,
		SessionID:      sessionID,
		ClientReviewID: clientReviewID,
		ReviewedAt:     now,
	})
}

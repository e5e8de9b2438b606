package review

import (
	"context"
	"fmt"

	"murajaa/internal/srs"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

// UndoSentence reverts one sentence submission: every per-lemma review log
// carrying the client ID (or its ":<lemma_id>" suffix) is deleted and each
// affected knowledge row is rewound to the pre-review snapshot stored in
// that log. Acquisition reviews rewind the box; SRS reviews rewind the card.
func (d *Dispatcher) UndoSentence(ctx context.Context, clientReviewID string) (int, error) {
	if clientReviewID == "" {
		return 0, fmt.Errorf("empty client review id")
	}
	logs, err := d.store.ReviewLogsByClientPrefix(ctx, clientReviewID)
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		dup, err := d.store.HasSentenceClientID(ctx, clientReviewID)
		if err != nil {
			return 0, err
		}
		if !dup {
			return 0, nil
		}
	}

	err = d.store.WithTx(ctx, func(q *store.Queries) error {
		ids := make([]int64, 0, len(logs))
		for _, rl := range logs {
			if err := d.rewind(ctx, q, rl); err != nil {
				return err
			}
			ids = append(ids, rl.ID)
		}
		if err := q.DeleteReviewLogs(ctx, ids); err != nil {
			return err
		}
		return q.DeleteSentenceReviewLog(ctx, clientReviewID)
	})
	if err != nil {
		return 0, err
	}
	return len(logs), nil
}

// rewind undoes one review log's effect on its knowledge row.
func (d *Dispatcher) rewind(ctx context.Context, q *store.Queries, rl *types.ReviewLog) error {
	k, err := q.GetKnowledge(ctx, rl.LemmaID)
	if err != nil {
		return err
	}

	k.TimesSeen--
	if k.TimesSeen < 0 {
		k.TimesSeen = 0
	}
	if rl.Rating >= types.RatingGood && k.TimesCorrect > 0 {
		k.TimesCorrect--
	}
	if k.TotalEncounters > 0 {
		k.TotalEncounters--
	}

	if rl.IsAcquisition {
		// A graduated word returns to its pre-graduation box.
		k.State = types.StateAcquiring
		k.AcquisitionBox = rl.BoxBefore
		k.Card = nil
		k.GraduatedAt = nil
		prior, err := q.LatestReviewLogBefore(ctx, rl.LemmaID, rl.ID)
		if err != nil {
			return err
		}
		if prior == nil {
			k.AcquisitionNextDue = nil
		}
	} else {
		srs.RestoreCard(k, rl.CardBefore)
		if k.Card == nil {
			k.AcquisitionBox = 0
			k.AcquisitionNextDue = nil
		}
	}
	return q.PutKnowledge(ctx, k)
}

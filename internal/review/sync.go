package review

import (
	"context"

	"go.uber.org/zap"
)

// SyncStatus is the per-item outcome of a bulk replay.
type SyncStatus string

const (
	SyncApplied   SyncStatus = "applied"
	SyncDuplicate SyncStatus = "duplicate"
	SyncError     SyncStatus = "error"
)

// SyncItemResult pairs one replayed submission with its outcome.
type SyncItemResult struct {
	ClientReviewID string
	Status         SyncStatus
	Error          string
}

// Sync replays a batch of offline sentence reviews in order. Each item is
// applied independently: a failure is recorded and the batch continues, so
// the client can retry only the failed items.
func (d *Dispatcher) Sync(ctx context.Context, items []SentenceRequest) []SyncItemResult {
	out := make([]SyncItemResult, 0, len(items))
	for _, req := range items {
		r := SyncItemResult{ClientReviewID: req.ClientReviewID}
		res, err := d.SubmitSentence(ctx, req)
		switch {
		case err != nil:
			r.Status = SyncError
			r.Error = err.Error()
			d.log.Warn("sync item failed",
				zap.String("client_review_id", req.ClientReviewID), zap.Error(err))
		case res.Duplicate:
			r.Status = SyncDuplicate
		default:
			r.Status = SyncApplied
		}
		out = append(out, r)
	}
	return out
}

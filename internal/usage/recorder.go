// Package usage implements the Usage Recorder: best-effort, asynchronous accounting writes that
// never block or fail the request they describe (§4.8, §7: "usage recording failures are
// suppressed").
package usage

import (
	"context"
	"log/slog"
	"time"

	"anthrogate/internal/domain"
	"anthrogate/internal/store"
)

// Recorder fires UsageRecord writes on a background goroutine.
type Recorder struct {
	repo store.UsageRepository
}

func New(repo store.UsageRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record spawns a goroutine that writes record to the repository. It returns immediately; the
// pipeline never waits on or fails because of a storage error here.
func (r *Recorder) Record(record domain.UsageRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.repo.Record(ctx, record); err != nil {
			slog.Error("usage record write failed",
				"api_key", record.APIKey,
				"request_id", record.RequestID,
				"error", err)
		}
	}()
}

package history

import (
	"context"
	"log/slog"

	"vidsub/internal/logging"
	"vidsub/internal/pipeline"
)

// Recorder is a pipeline observer that stores every finished run and keeps
// the table trimmed to MaxItems.
type Recorder struct {
	pipeline.NopObserver
	Store    *Store
	MaxItems int
	Logger   *slog.Logger
}

// Finished records res. Storage failures are logged, never propagated.
func (r *Recorder) Finished(res pipeline.Result) {
	if r == nil || r.Store == nil {
		return
	}
	ctx := context.Background()
	logger := logging.NewComponentLogger(r.Logger, "history")
	if err := r.Store.Record(ctx, FromResult(res)); err != nil {
		logging.WarnWithContext(logger, "run history not recorded", "history_record_failed",
			logging.String(logging.FieldRunID, res.RunID),
			logging.String(logging.FieldImpact, "run will be missing from vidsub history"),
			logging.Error(err),
		)
		return
	}
	if r.MaxItems > 0 {
		if removed, err := r.Store.Prune(ctx, r.MaxItems); err != nil {
			logger.Debug("history prune failed", logging.Error(err))
		} else if removed > 0 {
			logger.Debug("history pruned", logging.Int64("removed", removed))
		}
	}
}

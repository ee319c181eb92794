package history

import (
	"context"
	"log/slog"

	"github.com/starford/vbsb/internal/models"
)

// Store defines the build history operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Store interface {
	Record(ctx context.Context, res *models.CycleResult) (int64, error)
	Recent(ctx context.Context, limit int) ([]Build, error)
	Get(ctx context.Context, id int64) (*Build, error)
	Last(ctx context.Context) (*Build, error)
	Failures(ctx context.Context, buildID int64) ([]Failure, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Recorder writes every finished cycle to a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// CycleFinished records res. A failed insert is logged; it never affects
// the build itself.
func (r *Recorder) CycleFinished(ctx context.Context, res *models.CycleResult) {
	id, err := r.store.Record(context.WithoutCancel(ctx), res)
	if err != nil {
		r.logger.Warn("history: record failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("history: recorded", slog.Int64("build_id", id))
}

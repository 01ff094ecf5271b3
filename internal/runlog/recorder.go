package runlog

import (
	"context"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run model.RunSnapshot) error
	Recent(ctx context.Context, limit int) ([]model.RunSnapshot, error)
	Close() error
}

// NoopRecorder discards runs.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, model.RunSnapshot) error { return nil }
func (NoopRecorder) Recent(context.Context, int) ([]model.RunSnapshot, error) {
	return nil, nil
}
func (NoopRecorder) Close() error { return nil }

package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// NopStore discards runs. Used when store.driver is "none".
type NopStore struct{}

func (NopStore) SaveRun(context.Context, *model.BatchResult) error { return nil }

func (NopStore) GetRun(_ context.Context, runID string) (*RunSummary, error) {
	return nil, eris.Wrapf(ErrNotFound, "store: run %s (history disabled)", runID)
}

func (NopStore) ListRuns(context.Context, RunFilter) ([]RunSummary, error) { return nil, nil }

func (NopStore) ListDecisions(_ context.Context, runID string) ([]model.DecisionLog, error) {
	return nil, eris.Wrapf(ErrNotFound, "store: run %s (history disabled)", runID)
}

func (NopStore) Migrate(context.Context) error { return nil }
func (NopStore) Close() error { return nil }

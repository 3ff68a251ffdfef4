package storage

import (
	"context"

	"clamm/internal/model"
)

// Storage defines a sink for simulation output.
type Storage interface {
	PutResults(ctx context.Context, results []model.ResultRecord) error
	PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error
	PutMetrics(ctx context.Context, metrics []model.SwapMetrics) error
}

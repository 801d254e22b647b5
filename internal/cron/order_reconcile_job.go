package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/smm-storefront/internal/reconcile"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const defaultReconcileBatch = 100

type orderSyncer interface {
	SyncDue(ctx context.Context, batchSize int) (reconcile.Summary, error)
}

type OrderReconcileJobParams struct {
	Logger    *logger.Logger
	Syncer    orderSyncer
	BatchSize int
}

// NewOrderReconcileJob polls providers for every in-flight order.
func NewOrderReconcileJob(params OrderReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &orderReconcileJob{logg: params.Logger, syncer: params.Syncer, batch: batch}, nil
}

type orderReconcileJob struct {
	logg   *logger.Logger
	syncer orderSyncer
	batch  int
}

func (j *orderReconcileJob) Name() string { return "order-reconcile" }

// Run fails when any order failed to sync; the others are still applied.
func (j *orderReconcileJob) Run(ctx context.Context) error {
	summary, err := j.syncer.SyncDue(ctx, j.batch)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":     summary.Scanned,
		"transitions": summary.Transitions,
		"failed":      summary.Failed,
	}), "order reconcile finished")
	if err != nil {
		return fmt.Errorf("order reconcile: %w", err)
	}
	return nil
}

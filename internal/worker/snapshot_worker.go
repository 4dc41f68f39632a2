// Package worker consumes record-changed events and keeps derived balance
// state current.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delat/internal/amqp"
	"delat/internal/log"
	"delat/internal/metrics"
	"delat/internal/services"
	"delat/internal/storage"
)

// SnapshotSource computes a group's monthly balance snapshot.
type SnapshotSource interface {
	BalanceSnapshot(ctx context.Context, groupID string, year int, month time.Month) (services.Snapshot, error)
}

// SnapshotWorker recomputes the affected month whenever a record changes and
// exports how much money is still to be moved within the household.
type SnapshotWorker struct {
	snapshots SnapshotSource
	metrics   *metrics.Metrics
	logger    *log.Logger
}

func NewSnapshotWorker(snapshots SnapshotSource, m *metrics.Metrics, logger *log.Logger) *SnapshotWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SnapshotWorker{
		snapshots: snapshots,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordChanged is an amqp.Handler. Events for groups that no longer
// exist are acknowledged and dropped.
func (w *SnapshotWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	err := w.handle(ctx, msg)
	outcome := "ok"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		outcome = "dropped"
		w.logger.WarnContext(ctx, "Dropping event for unknown group",
			log.FieldGroupID, msg.GroupID,
			log.FieldRecordID, msg.RecordID)
		err = nil
	case err != nil:
		outcome = "error"
	}
	if w.metrics != nil {
		w.metrics.EventsConsumed.WithLabelValues(outcome).Inc()
	}
	return err
}

func (w *SnapshotWorker) handle(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	year, month, err := msg.Period()
	if err != nil {
		return fmt.Errorf("event period: %w", err)
	}

	snap, err := w.snapshots.BalanceSnapshot(ctx, msg.GroupID, year, month)
	if err != nil {
		return fmt.Errorf("recompute snapshot: %w", err)
	}

	open := OpenBalance(snap)
	if w.metrics != nil {
		w.metrics.HouseholdImbalance.WithLabelValues(msg.GroupID).Set(open)
	}

	w.logger.InfoContext(ctx, "Balance snapshot refreshed",
		log.FieldGroupID, msg.GroupID,
		log.FieldKind, msg.Kind,
		log.FieldRecordID, msg.RecordID,
		"action", msg.Action,
		log.FieldYear, year,
		log.FieldMonth, int(month),
		"open_balance", open,
		"transfers", len(snap.Transfers),
		"settled", snap.Settled)
	return nil
}

// OpenBalance is the amount the snapshot's suggested transfers would move.
func OpenBalance(snap services.Snapshot) float64 {
	var open float64
	for _, b := range snap.Balances {
		if b.Balance > 0 {
			open += b.Balance
		}
	}
	return open
}

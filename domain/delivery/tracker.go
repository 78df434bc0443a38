package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/resilience"
)

// SweepConfig carries the three UNDELIVERED_CHECK_* republish-sweep windows.
type SweepConfig struct {
	IntervalMinutes    int // too fresh, skip
	FailedPeriodMinutes int // older than this -> mark failed, still retry
	LookbackHours      int // sweep never looks further back than this
}

// Tracker is one instance per producer service (Cart, Terminal). It owns
// the DeliveryStatus collection for that producer and the breaker
// guarding its publisher.
type Tracker struct {
	repo      Repository
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	logger    *logging.Logger
	sweep     SweepConfig
}

func NewTracker(repo Repository, publisher Publisher, breaker *resilience.CircuitBreaker, logger *logging.Logger, sweep SweepConfig) *Tracker {
	if breaker == nil {
		breaker = resilience.New(resilience.DefaultConfig())
	}
	if logger == nil {
		logger = logging.NewFromEnv("delivery-tracker")
	}
	return &Tracker{repo: repo, publisher: publisher, breaker: breaker, logger: logger, sweep: sweep}
}

// CreatePending builds and persists a new DeliveryStatus row for destinations.
// The row is written on its own; it does not share a database transaction
// with the write of the business fact it accompanies.
func (t *Tracker) CreatePending(ctx context.Context, tenantID, topic, eventType string, payload any, destinations []string, transactionNo *int64) (*DeliveryStatus, error) {
	now := time.Now().UTC()
	ds := NewPending(uuid.NewString(), tenantID, topic, eventType, payload, destinations, now)
	ds.TransactionNo = transactionNo
	if err := t.repo.Create(ctx, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Publish attempts to publish an already-created row's payload. On
// success overall moves pending -> published; on failure it moves to
// failed (retryable by the sweep). The circuit breaker means a broker
// outage short-circuits fn without ever invoking it, so this call never
// blocks the business response for longer than the breaker allows.
func (t *Tracker) Publish(ctx context.Context, ds *DeliveryStatus) error {
	err := t.breaker.Execute(ctx, func(ctx context.Context) error {
		return t.publisher.Publish(ctx, ds.Topic, ds.EventType, ds.EventID, ds.Payload)
	})
	if err != nil {
		ds.OverallStatus = OverallFailed
		_ = t.repo.Update(ctx, ds)
		t.logger.WithContext(ctx).WithError(err).WithField("event_id", ds.EventID).Warn("publish failed")
		return errors.ExternalService("broker", err)
	}
	// A successful (re)publish moves pending and failed rows to published;
	// partial
	// progress from earlier ACKs is kept.
	if ds.OverallStatus == OverallPending || ds.OverallStatus == OverallFailed {
		ds.OverallStatus = OverallPublished
	}
	return t.repo.Update(ctx, ds)
}

// Ack applies a consumer's delivery-status callback.
func (t *Tracker) Ack(ctx context.Context, eventID, service string, status ServiceStatus, message string) error {
	ds, err := t.repo.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if !ds.UpdateService(service, status, message, time.Now().UTC()) {
		return errors.Validation("unknown destination service: " + service)
	}
	return t.repo.Update(ctx, ds)
}

// RunSweep performs one republish pass. For every
// row still undelivered: fresh rows are skipped; rows older than the
// failed-period are marked failed but still republished (mark bad, still
// try); everything
// else is republished unconditionally, since the sweep itself is not
// idempotent and relies on consumer-side dedup by event_id.
func (t *Tracker) RunSweep(ctx context.Context) {
	lookback := time.Duration(t.sweep.LookbackHours) * time.Hour
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	cutoff := time.Now().Add(-lookback).Unix()

	rows, err := t.repo.ListNotDelivered(ctx, cutoff)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("list undelivered rows failed")
		return
	}

	freshCutoff := time.Duration(t.sweep.IntervalMinutes) * time.Minute
	failedCutoff := time.Duration(t.sweep.FailedPeriodMinutes) * time.Minute

	for i := range rows {
		row := rows[i]
		age := time.Since(row.CreatedAt)
		if age < freshCutoff {
			continue
		}
		if failedCutoff > 0 && age > failedCutoff && row.OverallStatus != OverallFailed {
			row.OverallStatus = OverallFailed
			_ = t.repo.Update(ctx, &row)
			t.logger.WithContext(ctx).WithField("event_id", row.EventID).Warn("delivery marked failed by sweep; still retrying")
		}
		if err := t.Publish(ctx, &row); err != nil {
			t.logger.WithContext(ctx).WithError(err).WithField("event_id", row.EventID).Warn("republish attempt failed")
		}
	}
}

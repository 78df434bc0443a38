package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kugelpos/transactional-core/domain/report"
	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/kugelpos/transactional-core/infrastructure/state"
)

// AlertPublisher pushes fire-and-forget alert events. The
// core only constructs and publishes the envelope; subscriber transport
// is explicitly out of scope.
type AlertPublisher interface {
	Publish(ctx context.Context, topic, eventType, eventID string, payload any) error
}

// Consumer applies tranlog deltas to inventory, deduplicated by
// event_id. now is overridable for tests.
type Consumer struct {
	repo    Repository
	idemp   *state.IdempotencyStore
	alerts  AlertPublisher
	logger  *logging.Logger
	now     func() time.Time
}

func NewConsumer(repo Repository, idemp *state.IdempotencyStore, alerts AlertPublisher, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewFromEnv("stock-consumer")
	}
	return &Consumer{repo: repo, idemp: idemp, alerts: alerts, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Apply runs the full consume sequence. A replayed event_id is a no-op that
// still reports success to the producer; a failure after the inventory
// write but before the ACK is acceptable under at-least-once delivery
// because the idempotency check catches the retry.
func (c *Consumer) Apply(ctx context.Context, event TranlogEvent) error {
	if c.idemp.Seen(ctx, event.EventID) {
		c.logger.WithContext(ctx).WithField("event_id", event.EventID).Info("duplicate tranlog event; skipping stock apply")
		return nil
	}

	deltas := deltasByItem(event)
	updateType := updateTypeFor(event.TransactionType)
	now := c.now()

	var touched []Stock
	for itemCode, delta := range deltas {
		if delta == 0 {
			continue
		}
		s, err := c.repo.Get(ctx, event.TenantID, event.StoreCode, itemCode)
		if err != nil {
			return err
		}
		if s == nil {
			s = &Stock{TenantID: event.TenantID, StoreCode: event.StoreCode, ItemCode: itemCode}
		}
		previous := s.CurrentQuantity
		s.CurrentQuantity += delta
		s.LastUpdateTime = now
		if err := c.repo.Upsert(ctx, s); err != nil {
			return err
		}
		if err := c.repo.AppendUpdate(ctx, &StockUpdate{
			EventID:          event.EventID,
			TenantID:         event.TenantID,
			StoreCode:        event.StoreCode,
			ItemCode:         itemCode,
			PreviousQuantity: previous,
			QuantityChange:   delta,
			NewQuantity:      s.CurrentQuantity,
			UpdateType:       updateType,
			ReferenceID:      event.EventID,
			Timestamp:        now,
		}); err != nil {
			return err
		}
		touched = append(touched, *s)
	}

	if err := c.idemp.Record(ctx, event.EventID); err != nil {
		return err
	}

	for _, s := range touched {
		c.evaluateAlerts(ctx, s)
	}
	return nil
}

// deltasByItem computes the signed per-item-code quantity delta, skipping
// cancelled lines and applying the same factor rule the report aggregator
// uses for transaction-type sign:
// sales and void-returns consume stock, returns and void-sales restore it.
func deltasByItem(event TranlogEvent) map[string]float64 {
	factor := float64(report.Factor(event.TransactionType))
	out := make(map[string]float64)
	for _, li := range event.LineItems {
		if li.IsCancelled {
			continue
		}
		out[li.ItemCode] -= factor * li.Quantity
	}
	return out
}

// evaluateAlerts runs post-commit: minimum_stock fires before
// reorder_point since a stock at-or-below minimum is also necessarily
// at-or-below its (typically higher) reorder point; the two are
// independent thresholds rather than mutually exclusive.
func (c *Consumer) evaluateAlerts(ctx context.Context, s Stock) {
	if s.MinimumQuantity != nil && s.CurrentQuantity <= *s.MinimumQuantity {
		c.publishAlert(ctx, s, "minimum_stock", *s.MinimumQuantity)
	}
	if s.ReorderPoint != nil && s.CurrentQuantity <= *s.ReorderPoint {
		c.publishAlert(ctx, s, "reorder_point", *s.ReorderPoint)
	}
}

func (c *Consumer) publishAlert(ctx context.Context, s Stock, alertType string, threshold float64) {
	if c.alerts == nil {
		return
	}
	alert := Alert{
		TenantID:        s.TenantID,
		StoreCode:       s.StoreCode,
		ItemCode:        s.ItemCode,
		AlertType:       alertType,
		CurrentQuantity: s.CurrentQuantity,
		Threshold:       threshold,
		Timestamp:       c.now(),
	}
	if err := c.alerts.Publish(ctx, events.TopicStockAlert, alertType, uuid.NewString(), alert); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("item_code", s.ItemCode).Warn("alert publish failed")
	}
}

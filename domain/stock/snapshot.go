package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
	"github.com/robfig/cron/v3"
)

// TenantSchedule is one tenant's configurable snapshot cadence
// (daily/weekly/monthly).
type TenantSchedule struct {
	TenantID      string
	CronExpr      string // e.g. "0 3 * * *" for daily at 03:00
	RetentionDays int
}

// SnapshotScheduler runs one robfig/cron entry per configured tenant,
// each copying that tenant's entire Stock collection into a StockSnapshot
// and pruning snapshots past retention_days.
type SnapshotScheduler struct {
	repo     Repository
	snapRepo SnapshotRepository
	logger   *logging.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSnapshotScheduler(repo Repository, snapRepo SnapshotRepository, logger *logging.Logger) *SnapshotScheduler {
	if logger == nil {
		logger = logging.NewFromEnv("stock-snapshot")
	}
	return &SnapshotScheduler{repo: repo, snapRepo: snapRepo, logger: logger, cron: cron.New()}
}

// Configure installs (or replaces) the full set of per-tenant schedules.
// Safe to call again to pick up configuration changes; the cron instance
// is rebuilt from scratch each time since robfig/cron has no update-in-place API.
func (s *SnapshotScheduler) Configure(schedules []TenantSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = cron.New()

	for _, sched := range schedules {
		sched := sched
		_, err := s.cron.AddFunc(sched.CronExpr, func() {
			ctx := context.Background()
			if err := s.TakeSnapshot(ctx, sched.TenantID, "scheduler"); err != nil {
				s.logger.WithContext(ctx).WithError(err).WithField("tenant_id", sched.TenantID).Error("scheduled snapshot failed")
				return
			}
			if sched.RetentionDays > 0 {
				if err := s.snapRepo.DeleteOlderThan(ctx, sched.TenantID, sched.RetentionDays); err != nil {
					s.logger.WithContext(ctx).WithError(err).WithField("tenant_id", sched.TenantID).Warn("snapshot retention prune failed")
				}
			}
		})
		if err != nil {
			return fmt.Errorf("stock: invalid cron expression %q for tenant %s: %w", sched.CronExpr, sched.TenantID, err)
		}
	}
	return nil
}

// Start begins running the configured schedules.
func (s *SnapshotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// TakeSnapshot copies every Stock row for tenantID into a new
// StockSnapshot document. Exposed directly so an operator
// endpoint can trigger an out-of-band snapshot outside the cron schedule.
func (s *SnapshotScheduler) TakeSnapshot(ctx context.Context, tenantID, createdBy string) error {
	rows, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	items := make([]SnapshotItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, SnapshotItem{ItemCode: row.ItemCode, Quantity: row.CurrentQuantity})
	}

	snap := &StockSnapshot{
		SnapshotID:       uuid.NewString(),
		TenantID:         tenantID,
		GenerateDateTime: time.Now().UTC(),
		CreatedBy:        createdBy,
		Items:            items,
	}
	return s.snapRepo.Create(ctx, snap)
}

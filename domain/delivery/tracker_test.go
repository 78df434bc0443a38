package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/kugelpos/transactional-core/events"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	rows map[string]*DeliveryStatus
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[string]*DeliveryStatus{}}
}

func (m *memoryRepo) Create(ctx context.Context, d *DeliveryStatus) error {
	cp := *d
	m.rows[d.EventID] = &cp
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, eventID string) (*DeliveryStatus, error) {
	d, ok := m.rows[eventID]
	if !ok {
		return nil, errors.NotFound("delivery status", eventID)
	}
	cp := *d
	return &cp, nil
}

func (m *memoryRepo) Update(ctx context.Context, d *DeliveryStatus) error {
	cp := *d
	m.rows[d.EventID] = &cp
	return nil
}

func (m *memoryRepo) ListNotDelivered(ctx context.Context, createdAfterUnix int64) ([]DeliveryStatus, error) {
	var out []DeliveryStatus
	for _, d := range m.rows {
		if d.OverallStatus != OverallDelivered && d.CreatedAt.Unix() >= createdAfterUnix {
			out = append(out, *d)
		}
	}
	return out, nil
}

func newTestTracker(repo Repository, publisher Publisher, sweep SweepConfig) *Tracker {
	return NewTracker(repo, publisher, nil, nil, sweep)
}

func TestTracker_CreatePendingThenPublish(t *testing.T) {
	repo := newMemoryRepo()
	publisher := events.NewInMemoryPublisher()
	tracker := newTestTracker(repo, publisher, SweepConfig{})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", map[string]int{"transaction_no": 1}, []string{"report", "journal", "stock"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OverallPending, ds.OverallStatus)
	require.Len(t, ds.Services, 3)

	require.NoError(t, tracker.Publish(context.Background(), ds))
	assert.Equal(t, OverallPublished, ds.OverallStatus)
	require.Len(t, publisher.Published, 1)
	assert.Equal(t, ds.EventID, publisher.Published[0].EventID, "the envelope must carry the row's event_id")
}

func TestTracker_AcksDriveOverallStatus(t *testing.T) {
	repo := newMemoryRepo()
	tracker := newTestTracker(repo, events.NewInMemoryPublisher(), SweepConfig{})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report", "journal", "stock"}, nil)
	require.NoError(t, err)
	require.NoError(t, tracker.Publish(context.Background(), ds))

	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "report", ServiceReceived, ""))
	row, err := repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallPartiallyDelivered, row.OverallStatus)

	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "journal", ServiceReceived, ""))
	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "stock", ServiceReceived, ""))
	row, err = repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallDelivered, row.OverallStatus)
}

func TestTracker_AckUnknownServiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	tracker := newTestTracker(repo, events.NewInMemoryPublisher(), SweepConfig{})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report"}, nil)
	require.NoError(t, err)

	require.Error(t, tracker.Ack(context.Background(), ds.EventID, "warehouse", ServiceReceived, ""))
}

func TestTracker_AllFailedAcksMarkFailed(t *testing.T) {
	repo := newMemoryRepo()
	tracker := newTestTracker(repo, events.NewInMemoryPublisher(), SweepConfig{})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report", "stock"}, nil)
	require.NoError(t, err)
	require.NoError(t, tracker.Publish(context.Background(), ds))

	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "report", ServiceFailed, "decode error"))
	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "stock", ServiceFailed, "db down"))

	row, err := repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallFailed, row.OverallStatus)
}

// Publish fails -> overall failed; the sweep
// republishes past the freshness window; a later consumer ACK completes
// delivery.
func TestTracker_SweepRepublishesFailedRows(t *testing.T) {
	repo := newMemoryRepo()
	publisher := events.NewInMemoryPublisher()
	tracker := newTestTracker(repo, publisher, SweepConfig{IntervalMinutes: 0, FailedPeriodMinutes: 60, LookbackHours: 24})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report"}, nil)
	require.NoError(t, err)

	publisher.FailNext = true
	require.Error(t, tracker.Publish(context.Background(), ds))
	row, err := repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallFailed, row.OverallStatus)

	tracker.RunSweep(context.Background())
	row, err = repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallPublished, row.OverallStatus, "sweep republish must recover the row")
	require.Len(t, publisher.Published, 1)

	require.NoError(t, tracker.Ack(context.Background(), ds.EventID, "report", ServiceReceived, ""))
	row, err = repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallDelivered, row.OverallStatus)
}

func TestTracker_SweepSkipsFreshRows(t *testing.T) {
	repo := newMemoryRepo()
	publisher := events.NewInMemoryPublisher()
	tracker := newTestTracker(repo, publisher, SweepConfig{IntervalMinutes: 5, FailedPeriodMinutes: 60, LookbackHours: 24})

	_, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report"}, nil)
	require.NoError(t, err)

	tracker.RunSweep(context.Background())
	assert.Empty(t, publisher.Published, "a just-created row is too fresh to republish")
}

// Rows older than the failed period are marked failed but STILL
// republished — the documented "mark bad, still try" behaviour.
func TestTracker_SweepMarksStaleFailedButStillRepublishes(t *testing.T) {
	repo := newMemoryRepo()
	publisher := events.NewInMemoryPublisher()
	tracker := newTestTracker(repo, publisher, SweepConfig{IntervalMinutes: 0, FailedPeriodMinutes: 1, LookbackHours: 24})

	ds, err := tracker.CreatePending(context.Background(), "t1", events.TopicTranlog, "tranlog", nil, []string{"report"}, nil)
	require.NoError(t, err)

	// Age the row past the failed period.
	aged := repo.rows[ds.EventID]
	aged.CreatedAt = time.Now().Add(-10 * time.Minute)

	tracker.RunSweep(context.Background())

	require.Len(t, publisher.Published, 1, "stale rows are still republished")
	row, err := repo.Get(context.Background(), ds.EventID)
	require.NoError(t, err)
	assert.Equal(t, OverallPublished, row.OverallStatus, "a successful republish moves even a stale row forward")
}

func TestRecomputeOverall_NeverRegressesDelivered(t *testing.T) {
	ds := NewPending("e1", "t1", events.TopicTranlog, "tranlog", nil, []string{"report"}, time.Now())
	ds.UpdateService("report", ServiceReceived, "", time.Now())
	require.Equal(t, OverallDelivered, ds.OverallStatus)

	ds.UpdateService("report", ServiceFailed, "late failure", time.Now())
	assert.Equal(t, OverallDelivered, ds.OverallStatus, "delivered is terminal")
}

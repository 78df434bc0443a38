// Package delivery implements the at-least-once Delivery Tracker shared by
// every producer service (Cart, Terminal): a per-event, per-consumer
// delivery-status document, a republish sweep, and the overall-status
// recomputation rules.
package delivery

import "time"

// ServiceStatus is one consumer's delivery state for an event.
type ServiceStatus string

const (
	ServicePending  ServiceStatus = "pending"
	ServiceReceived ServiceStatus = "received"
	ServiceFailed   ServiceStatus = "failed"
)

// OverallStatus is the event's aggregate delivery state.
type OverallStatus string

const (
	OverallPending             OverallStatus = "pending"
	OverallPublished           OverallStatus = "published"
	OverallPartiallyDelivered  OverallStatus = "partially_delivered"
	OverallDelivered           OverallStatus = "delivered"
	OverallFailed              OverallStatus = "failed"
)

// ServiceDelivery is one destination's status within a DeliveryStatus row.
type ServiceDelivery struct {
	Name      string        `json:"name"`
	Status    ServiceStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DeliveryStatus is the per-event producer-side row.
type DeliveryStatus struct {
	EventID        string            `json:"event_id"`
	TenantID       string            `json:"tenant_id"`
	Topic          string            `json:"topic"`
	EventType      string            `json:"event_type"`
	Payload        interface{}       `json:"payload"`
	Services       []ServiceDelivery `json:"services"`
	OverallStatus  OverallStatus     `json:"overall_status"`
	CreatedAt      time.Time         `json:"created_at"`
	TransactionNo  *int64            `json:"transaction_no,omitempty"`
}

// NewPending builds a DeliveryStatus row with every destination pending.
// Callers write it in the same DB transaction as the business fact it
// accompanies. The topic rides on the row so the republish sweep routes a
// retry onto the same topic the original publish targeted.
func NewPending(eventID, tenantID, topic, eventType string, payload interface{}, destinations []string, now time.Time) DeliveryStatus {
	services := make([]ServiceDelivery, 0, len(destinations))
	for _, name := range destinations {
		services = append(services, ServiceDelivery{Name: name, Status: ServicePending, UpdatedAt: now})
	}
	return DeliveryStatus{
		EventID:       eventID,
		TenantID:      tenantID,
		Topic:         topic,
		EventType:     eventType,
		Payload:       payload,
		Services:      services,
		OverallStatus: OverallPending,
		CreatedAt:     now,
	}
}

// RecomputeOverall derives the aggregate: all received -> delivered;
// any received but not all -> partially_delivered; all failed -> failed;
// else published. Never regresses a row already `delivered`, except that
// the sweep is explicitly allowed to move a stale row to `failed`
// regardless of this rule — handled by the caller before invoking a
// republish, not here.
func (d *DeliveryStatus) RecomputeOverall() {
	if d.OverallStatus == OverallDelivered {
		return
	}
	if len(d.Services) == 0 {
		return
	}
	received, failed := 0, 0
	for _, s := range d.Services {
		switch s.Status {
		case ServiceReceived:
			received++
		case ServiceFailed:
			failed++
		}
	}
	switch {
	case received == len(d.Services):
		d.OverallStatus = OverallDelivered
	case received > 0:
		d.OverallStatus = OverallPartiallyDelivered
	case failed == len(d.Services):
		d.OverallStatus = OverallFailed
	default:
		d.OverallStatus = OverallPublished
	}
}

// UpdateService applies a consumer ACK to the named destination and
// recomputes the overall status.
func (d *DeliveryStatus) UpdateService(name string, status ServiceStatus, message string, now time.Time) bool {
	for i := range d.Services {
		if d.Services[i].Name == name {
			d.Services[i].Status = status
			d.Services[i].Message = message
			d.Services[i].UpdatedAt = now
			d.RecomputeOverall()
			return true
		}
	}
	return false
}

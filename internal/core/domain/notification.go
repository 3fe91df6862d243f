package domain

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentRejected  EventType = "payment.rejected"
	EventPaymentCompleted EventType = "payment.completed"
)

// EventForStatus maps a post-verification status to the event announcing it.
func EventForStatus(s PaymentStatus) (EventType, bool) {
	switch s {
	case PaymentStatusConfirmed:
		return EventPaymentConfirmed, true
	case PaymentStatusRejected:
		return EventPaymentRejected, true
	case PaymentStatusCompleted:
		return EventPaymentCompleted, true
	}
	return "", false
}

type PaymentEvent struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	PaymentID  string        `json:"payment_id"`
	UserID     string        `json:"user_id"`
	Reference  string        `json:"reference"`
	Status     PaymentStatus `json:"status"`
	Message    string        `json:"message,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type Notification struct {
	ID        string
	UserID    string
	Type      EventType
	Title     string
	Message   string
	IsRead    bool
	Metadata  map[string]string
	CreatedAt time.Time
}

func NotificationFromEvent(id string, e PaymentEvent) Notification {
	var title, message string
	switch e.Type {
	case EventPaymentConfirmed:
		title = "Payment confirmed"
		message = fmt.Sprintf("Your payment %s has been confirmed.", e.Reference)
	case EventPaymentRejected:
		title = "Payment rejected"
		message = fmt.Sprintf("Your payment %s was rejected.", e.Reference)
	case EventPaymentCompleted:
		title = "Payment completed"
		message = fmt.Sprintf("Your payment %s is complete.", e.Reference)
	default:
		title = "Payment update"
		message = fmt.Sprintf("Your payment %s is now %s.", e.Reference, e.Status)
	}
	if e.Message != "" {
		message += " " + e.Message
	}

	return Notification{
		ID:      id,
		UserID:  e.UserID,
		Type:    e.Type,
		Title:   title,
		Message: message,
		Metadata: map[string]string{
			"payment_id": e.PaymentID,
			"reference":  e.Reference,
			"status":     string(e.Status),
		},
		CreatedAt: e.OccurredAt,
	}
}

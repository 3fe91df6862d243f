package domain

import (
	"testing"
	"time"
)

func TestPayment_CanTransitionTo(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		payment Payment
		to      PaymentStatus
		want    bool
	}{
		{"pending to submitted", Payment{Status: PaymentStatusPending}, PaymentStatusSubmitted, true},
		{"submitted to submitted", Payment{Status: PaymentStatusSubmitted}, PaymentStatusSubmitted, false},
		{"submitted to confirmed", Payment{Kind: PaymentKindOrder, Status: PaymentStatusSubmitted}, PaymentStatusConfirmed, true},
		{"submitted to rejected", Payment{Kind: PaymentKindDues, Status: PaymentStatusSubmitted}, PaymentStatusRejected, true},
		{"order pending to confirmed", Payment{Kind: PaymentKindOrder, Status: PaymentStatusPending}, PaymentStatusConfirmed, false},
		{"charge pending to confirmed", Payment{Kind: PaymentKindCharge, Status: PaymentStatusPending}, PaymentStatusConfirmed, true},
		{"already verified", Payment{Kind: PaymentKindOrder, Status: PaymentStatusSubmitted, VerifiedBy: "admin", VerifiedAt: &now}, PaymentStatusConfirmed, false},
		{"confirmed to completed", Payment{Status: PaymentStatusConfirmed}, PaymentStatusCompleted, true},
		{"submitted to completed", Payment{Status: PaymentStatusSubmitted}, PaymentStatusCompleted, false},
		{"rejected is terminal", Payment{Status: PaymentStatusRejected}, PaymentStatusSubmitted, false},
		{"back to pending", Payment{Status: PaymentStatusSubmitted}, PaymentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payment.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s) = %v, want %v", tt.to, got, tt.want)
			}
		})
	}
}

func TestCart_Total(t *testing.T) {
	cart := Cart{Lines: []CartLine{
		{ProductID: "shirt", Quantity: 2, UnitPrice: 500},
		{ProductID: "mug", Quantity: 1, UnitPrice: 250},
	}}

	if got := cart.Total(); got != 1250 {
		t.Errorf("expected total 1250, got %d", got)
	}
	if _, ok := cart.Line("mug"); !ok {
		t.Error("expected mug line")
	}
	if _, ok := cart.Line("hat"); ok {
		t.Error("unexpected hat line")
	}
}

func TestPayment_Clone(t *testing.T) {
	now := time.Now()
	p := Payment{Lines: []PaymentLine{{ProductID: "a", Quantity: 1}}, VerifiedAt: &now}

	c := p.Clone()
	c.Lines[0].Quantity = 5
	*c.VerifiedAt = now.Add(time.Hour)

	if p.Lines[0].Quantity != 1 {
		t.Error("clone shares lines with original")
	}
	if !p.VerifiedAt.Equal(now) {
		t.Error("clone shares verified_at with original")
	}
}

func TestNotificationFromEvent(t *testing.T) {
	e := PaymentEvent{
		Type:      EventPaymentRejected,
		PaymentID: "p1",
		UserID:    "u1",
		Reference: "PAY-ABCDEFGHJK",
		Status:    PaymentStatusRejected,
		Message:   "Proof unreadable.",
	}

	n := NotificationFromEvent("n1", e)
	if n.UserID != "u1" || n.Type != EventPaymentRejected {
		t.Errorf("unexpected notification %+v", n)
	}
	if n.Metadata["reference"] != "PAY-ABCDEFGHJK" || n.Metadata["status"] != "rejected" {
		t.Errorf("unexpected metadata %v", n.Metadata)
	}
	if n.Message != "Your payment PAY-ABCDEFGHJK was rejected. Proof unreadable." {
		t.Errorf("unexpected message %q", n.Message)
	}
}

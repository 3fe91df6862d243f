package domain

import (
	"slices"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSubmitted, PaymentStatusConfirmed,
		PaymentStatusCompleted, PaymentStatusRejected:
		return true
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRejected
}

type PaymentKind string

const (
	PaymentKindOrder  PaymentKind = "order"
	PaymentKindDues   PaymentKind = "dues"
	PaymentKindCharge PaymentKind = "charge"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodBankTransfer || m == PaymentMethodCash
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Target is the status a payment moves to under this decision.
func (d Decision) Target() PaymentStatus {
	if d == DecisionApprove {
		return PaymentStatusConfirmed
	}
	return PaymentStatusRejected
}

type PaymentLine struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice int64
}

func (l PaymentLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

type Payment struct {
	ID               string
	UserID           string
	Kind             PaymentKind
	Title            string
	Description      string
	Amount           int64
	Method           PaymentMethod
	Status           PaymentStatus
	Reference        string
	Lines            []PaymentLine
	ProofImage       string
	ProofSubmittedAt *time.Time
	VerifiedBy       string
	VerifiedAt       *time.Time
	ReceiptCode      string
	CompletedAt      *time.Time
	AdminNotes       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p Payment) ProductIDs() []string {
	ids := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (p Payment) IsVerified() bool {
	return p.VerifiedBy != "" || p.VerifiedAt != nil
}

// VerifiableFrom lists the statuses an admin decision may be taken from.
// Charges raised by an admin skip the proof step.
func VerifiableFrom(kind PaymentKind) []PaymentStatus {
	if kind == PaymentKindCharge {
		return []PaymentStatus{PaymentStatusPending, PaymentStatusSubmitted}
	}
	return []PaymentStatus{PaymentStatusSubmitted}
}

func (p Payment) CanTransitionTo(to PaymentStatus) bool {
	switch to {
	case PaymentStatusSubmitted:
		return p.Status == PaymentStatusPending
	case PaymentStatusConfirmed, PaymentStatusRejected:
		return !p.IsVerified() && slices.Contains(VerifiableFrom(p.Kind), p.Status)
	case PaymentStatusCompleted:
		return p.Status == PaymentStatusConfirmed
	}
	return false
}

// Clone returns a deep copy of p.
func (p Payment) Clone() Payment {
	out := p
	out.Lines = append([]PaymentLine(nil), p.Lines...)
	out.ProofSubmittedAt = cloneTime(p.ProofSubmittedAt)
	out.VerifiedAt = cloneTime(p.VerifiedAt)
	out.CompletedAt = cloneTime(p.CompletedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Verification is an admin decision applied with a compare-and-swap on status.
type Verification struct {
	PaymentID string
	AdminID   string
	Decision  Decision
	Notes     string
	From      []PaymentStatus
	At        time.Time
}

type PaymentFilter struct {
	UserID string
	Status PaymentStatus
	Limit  int
	Offset int
}

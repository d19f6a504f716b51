package models

import "time"

// FeeStatus tracks how much of a fee has been settled.
type FeeStatus string

const (
	FeePending FeeStatus = "pending"
	FeePartial FeeStatus = "partial"
	FeePaid    FeeStatus = "paid"
	FeeOverdue FeeStatus = "overdue"
)

// ValidFeeStatus reports whether the status is a known value.
func ValidFeeStatus(s FeeStatus) bool {
	switch s {
	case FeePending, FeePartial, FeePaid, FeeOverdue:
		return true
	}
	return false
}

// Fee is a receivable raised against a student. amount_paid accumulates
// payments and never exceeds amount; status is derived from the two.
type Fee struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Amount        float64    `db:"amount" json:"amount"`
	AmountPaid    float64    `db:"amount_paid" json:"amount_paid"`
	FeeType       string     `db:"fee_type" json:"fee_type"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Status        FeeStatus  `db:"status" json:"status"`
	AcademicYear  string     `db:"academic_year" json:"academic_year"`
	PaymentDate   *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	PaymentMethod *string    `db:"payment_method" json:"payment_method,omitempty"`
	TransactionID *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Balance returns the unpaid remainder.
func (f Fee) Balance() float64 {
	return f.Amount - f.AmountPaid
}

// FeeDetail is a fee row enriched with the student name and balance.
type FeeDetail struct {
	Fee
	StudentName string  `db:"student_name" json:"student_name"`
	Balance     float64 `db:"-" json:"balance"`
}

// FeePayment records a single payment applied to a fee.
type FeePayment struct {
	ID            string    `db:"id" json:"id"`
	FeeID         string    `db:"fee_id" json:"fee_id"`
	AmountPaid    float64   `db:"amount_paid" json:"amount_paid"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	TransactionID *string   `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// FeeFilter captures list filters for fee queries.
type FeeFilter struct {
	StudentIDs   []string
	Status       FeeStatus
	AcademicYear string
	Page         int
	PageSize     int
}

// FeeSummary aggregates collection totals for the admin view.
type FeeSummary struct {
	TotalExpected  float64           `json:"total_expected"`
	TotalCollected float64           `json:"total_collected"`
	TotalPending   float64           `json:"total_pending"`
	CollectionRate float64           `json:"collection_rate"`
	StatusCounts   map[FeeStatus]int `json:"status_counts"`
}

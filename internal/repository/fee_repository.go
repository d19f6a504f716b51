package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// FeeRepository manages persistence for fees and fee payments.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const feeDetailColumns = `f.id, f.student_id, f.amount, f.amount_paid, f.fee_type, f.due_date, f.status, f.academic_year,
        f.payment_date, f.payment_method, f.transaction_id, f.created_at, f.updated_at, s.name AS student_name`

const feeDetailBase = `FROM fees f JOIN students s ON s.id = f.student_id`

// List returns fees matching the filters plus a total count.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, "f.student_id IN (?)")
		args = append(args, filter.StudentIDs)
	}
	if filter.Status != "" {
		conditions = append(conditions, "f.status = ?")
		args = append(args, filter.Status)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, "f.academic_year = ?")
		args = append(args, filter.AcademicYear)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY f.due_date DESC LIMIT %d OFFSET %d", feeDetailColumns, feeDetailBase, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build fees query: %w", err)
	}
	var fees []models.FeeDetail
	if err := r.db.SelectContext(ctx, &fees, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list fees: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", feeDetailBase, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build fees count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count fees: %w", err)
	}
	return fees, total, nil
}

// FindByID fetches a fee detail by id.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.FeeDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE f.id = $1", feeDetailColumns, feeDetailBase)
	var detail models.FeeDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new fee.
func (r *FeeRepository) Create(ctx context.Context, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now
	const query = `INSERT INTO fees (id, student_id, amount, amount_paid, fee_type, due_date, status, academic_year,
        payment_date, payment_method, transaction_id, created_at, updated_at)
        VALUES (:id, :student_id, :amount, :amount_paid, :fee_type, :due_date, :status, :academic_year,
        :payment_date, :payment_method, :transaction_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// Update rewrites an existing fee row.
func (r *FeeRepository) Update(ctx context.Context, fee *models.Fee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fees SET amount = :amount, amount_paid = :amount_paid, fee_type = :fee_type, due_date = :due_date,
        status = :status, academic_year = :academic_year, payment_date = :payment_date, payment_method = :payment_method,
        transaction_id = :transaction_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("update fee: %w", err)
	}
	return nil
}

// RecordPayment stores a payment row for the fee ledger.
func (r *FeeRepository) RecordPayment(ctx context.Context, payment *models.FeePayment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fee_payments (id, fee_id, amount_paid, payment_method, transaction_id, created_at)
        VALUES (:id, :fee_id, :amount_paid, :payment_method, :transaction_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("record fee payment: %w", err)
	}
	return nil
}

// HasPayments reports whether any payment rows exist for the fee.
func (r *FeeRepository) HasPayments(ctx context.Context, feeID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM fee_payments WHERE fee_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, feeID); err != nil {
		return false, fmt.Errorf("check fee payments: %w", err)
	}
	return exists, nil
}

// Delete removes a fee.
func (r *FeeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM fees WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete fee: %w", err)
	}
	return nil
}

// Summary aggregates school-wide collection totals.
func (r *FeeRepository) Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error) {
	query := `SELECT COALESCE(SUM(amount), 0) AS total_expected, COALESCE(SUM(amount_paid), 0) AS total_collected,
        COUNT(*) FILTER (WHERE status = 'pending') AS pending,
        COUNT(*) FILTER (WHERE status = 'partial') AS partial,
        COUNT(*) FILTER (WHERE status = 'paid') AS paid,
        COUNT(*) FILTER (WHERE status = 'overdue') AS overdue
        FROM fees`
	args := []interface{}{}
	if academicYear != "" {
		query += " WHERE academic_year = $1"
		args = append(args, academicYear)
	}

	var row struct {
		TotalExpected  float64 `db:"total_expected"`
		TotalCollected float64 `db:"total_collected"`
		Pending        int     `db:"pending"`
		Partial        int     `db:"partial"`
		Paid           int     `db:"paid"`
		Overdue        int     `db:"overdue"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("fee summary: %w", err)
	}

	summary := &models.FeeSummary{
		TotalExpected:  row.TotalExpected,
		TotalCollected: row.TotalCollected,
		TotalPending:   row.TotalExpected - row.TotalCollected,
		StatusCounts: map[models.FeeStatus]int{
			models.FeePending: row.Pending,
			models.FeePartial: row.Partial,
			models.FeePaid:    row.Paid,
			models.FeeOverdue: row.Overdue,
		},
	}
	if row.TotalExpected > 0 {
		summary.CollectionRate = 100 * row.TotalCollected / row.TotalExpected
	}
	return summary, nil
}

// PendingBalance sums the unpaid remainder across a student's fees.
func (r *FeeRepository) PendingBalance(ctx context.Context, studentID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount - amount_paid), 0) FROM fees WHERE student_id = $1 AND status <> 'paid'`
	var balance float64
	if err := r.db.GetContext(ctx, &balance, query, studentID); err != nil {
		return 0, fmt.Errorf("pending balance: %w", err)
	}
	return balance, nil
}

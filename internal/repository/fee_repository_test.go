package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/sms-api/internal/models"
)

func newFeeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func feeDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "amount", "amount_paid", "fee_type", "due_date", "status", "academic_year",
		"payment_date", "payment_method", "transaction_id", "created_at", "updated_at", "student_name"})
}

func TestFeeRepositoryList(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fees f JOIN students s ON s.id = f.student_id WHERE 1=1 AND f.student_id IN ($1, $2) AND f.status = $3 ORDER BY f.due_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", "stu-2", models.FeePending).
		WillReturnRows(feeDetailRows().
			AddRow("fee-1", "stu-1", 500.0, 0.0, "tuition", time.Now(), "pending", "2025-2026", nil, nil, nil, time.Now(), time.Now(), "Alice"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM fees f JOIN students s ON s.id = f.student_id WHERE 1=1 AND f.student_id IN ($1, $2) AND f.status = $3")).
		WithArgs("stu-1", "stu-2", models.FeePending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	fees, total, err := repo.List(context.Background(), models.FeeFilter{
		StudentIDs: []string{"stu-1", "stu-2"},
		Status:     models.FeePending,
	})
	require.NoError(t, err)
	assert.Len(t, fees, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Alice", fees[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fees f JOIN students s ON s.id = f.student_id WHERE f.id = $1")).
		WithArgs("fee-1").
		WillReturnRows(feeDetailRows().
			AddRow("fee-1", "stu-1", 500.0, 200.0, "tuition", time.Now(), "partial", "2025-2026", nil, nil, nil, time.Now(), time.Now(), "Alice"))

	detail, err := repo.FindByID(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.Equal(t, models.FeePartial, detail.Status)
	assert.Equal(t, 300.0, detail.Fee.Balance())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE f.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("INSERT INTO fees").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	fee := &models.Fee{StudentID: "stu-1", Amount: 500, FeeType: "tuition", DueDate: time.Now(), Status: models.FeePending, AcademicYear: "2025-2026"}
	err := repo.Create(context.Background(), fee)
	require.NoError(t, err)
	assert.NotEmpty(t, fee.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("UPDATE fees SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Fee{ID: "fee-1", StudentID: "stu-1", Amount: 500, AmountPaid: 500, Status: models.FeePaid})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryRecordPayment(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("INSERT INTO fee_payments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payment := &models.FeePayment{FeeID: "fee-1", AmountPaid: 200, PaymentMethod: "card"}
	err := repo.RecordPayment(context.Background(), payment)
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryHasPayments(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM fee_payments WHERE fee_id = $1)")).
		WithArgs("fee-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := repo.HasPayments(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fees WHERE id = $1")).
		WithArgs("fee-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositorySummary(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM fees WHERE academic_year = $1")).
		WithArgs("2025-2026").
		WillReturnRows(sqlmock.NewRows([]string{"total_expected", "total_collected", "pending", "partial", "paid", "overdue"}).
			AddRow(10000.0, 7500.0, 4, 2, 10, 1))

	summary, err := repo.Summary(context.Background(), "2025-2026")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, summary.TotalExpected)
	assert.Equal(t, 2500.0, summary.TotalPending)
	assert.Equal(t, 75.0, summary.CollectionRate)
	assert.Equal(t, 4, summary.StatusCounts[models.FeePending])
	assert.Equal(t, 10, summary.StatusCounts[models.FeePaid])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryPendingBalance(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount - amount_paid), 0) FROM fees WHERE student_id = $1 AND status <> 'paid'")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(350.0))

	balance, err := repo.PendingBalance(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 350.0, balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

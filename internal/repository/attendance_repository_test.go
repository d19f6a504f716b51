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

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func attendanceDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "date", "status", "remarks", "created_at", "updated_at", "student_name"})
}

func TestAttendanceRepositoryList(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance a JOIN students s ON s.id = a.student_id WHERE 1=1 AND a.student_id IN ($1) AND a.status = $2 ORDER BY a.date DESC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", models.AttendancePresent).
		WillReturnRows(attendanceDetailRows().
			AddRow("att-1", "stu-1", time.Now(), "present", nil, time.Now(), time.Now(), "Alice"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance a JOIN students s ON s.id = a.student_id WHERE 1=1 AND a.student_id IN ($1) AND a.status = $2")).
		WithArgs("stu-1", models.AttendancePresent).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{
		StudentIDs: []string{"stu-1"},
		Status:     models.AttendancePresent,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Alice", records[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByDateRange(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND s.class_id = $1 AND a.date >= $2 AND a.date <= $3 ORDER BY a.date DESC")).
		WithArgs("cls-1", start, end).
		WillReturnRows(attendanceDetailRows())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND s.class_id = $1 AND a.date >= $2 AND a.date <= $3")).
		WithArgs("cls-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{
		ClassID:   "cls-1",
		StartDate: &start,
		EndDate:   &end,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExistsForDate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance WHERE student_id = $1 AND date = $2 LIMIT 1")).
		WithArgs("stu-1", date).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance WHERE student_id = $1 AND date = $2 LIMIT 1")).
		WithArgs("stu-2", date).
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsForDate(context.Background(), "stu-1", date)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForDate(context.Background(), "stu-2", date)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAnyExistsForDate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance WHERE date = $1 AND student_id IN ($2, $3) LIMIT 1")).
		WithArgs(date, "stu-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	exists, err := repo.AnyExistsForDate(context.Background(), []string{"stu-1", "stu-2"}, date)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAnyExistsForDateEmptySet(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	exists, err := repo.AnyExistsForDate(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.Attendance{StudentID: "stu-1", Date: time.Now(), Status: models.AttendancePresent}
	err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 2))

	records := []models.Attendance{
		{StudentID: "stu-1", Date: time.Now(), Status: models.AttendancePresent},
		{StudentID: "stu-2", Date: time.Now(), Status: models.AttendanceAbsent},
	}
	err := repo.BulkCreate(context.Background(), records)
	require.NoError(t, err)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEmpty(t, records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance SET status = $2, remarks = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("att-1", models.AttendanceLate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	remarks := "arrived after first period"
	err := repo.Update(context.Background(), "att-1", models.AttendanceLate, &remarks)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStatusCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance a JOIN students s ON s.id = a.student_id WHERE 1=1 AND a.student_id IN ($1)")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "present", "absent", "late", "excused"}).
			AddRow(20, 15, 2, 2, 1))

	counts, err := repo.StatusCounts(context.Background(), models.AttendanceFilter{StudentIDs: []string{"stu-1"}})
	require.NoError(t, err)
	assert.Equal(t, 20, counts.Total)
	assert.Equal(t, 15, counts.Present)
	assert.Equal(t, 1, counts.Excused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDefaulters(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("FROM students s JOIN attendance a ON a.student_id = s.id").
		WithArgs(75.0).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "class_id", "total_days", "present_days", "attendance_percentage"}).
			AddRow("stu-9", "Bob", "cls-1", 40, 26, 65.0))

	defaulters, err := repo.Defaulters(context.Background(), 75.0, "")
	require.NoError(t, err)
	require.Len(t, defaulters, 1)
	assert.Equal(t, "Bob", defaulters[0].StudentName)
	assert.Equal(t, 65.0, defaulters[0].AttendancePercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDefaultersByClass(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.class_id = $2")).
		WithArgs(75.0, "cls-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "class_id", "total_days", "present_days", "attendance_percentage"}))

	defaulters, err := repo.Defaulters(context.Background(), 75.0, "cls-1")
	require.NoError(t, err)
	assert.Empty(t, defaulters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

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

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func studentDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "dob", "email", "phone", "address", "guardian_name", "class_id", "user_id", "created_at", "updated_at", "class_name"})
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := studentDetailRows().
		AddRow("stu-1", "Alice", time.Now(), nil, nil, nil, nil, "cls-1", nil, time.Now(), time.Now(), "Grade 5 - A")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.name, s.dob, s.email, s.phone, s.address, s.guardian_name, s.class_id, s.user_id, s.created_at, s.updated_at,\n        CASE WHEN c.id IS NULL THEN NULL ELSE c.class_name || ' - ' || c.section END AS class_name FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE 1=1 ORDER BY s.name ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Alice", students[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListScoped(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND s.id IN ($1, $2) ORDER BY s.name ASC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", "stu-2").
		WillReturnRows(studentDetailRows().
			AddRow("stu-1", "Alice", time.Now(), nil, nil, nil, nil, nil, nil, time.Now(), time.Now(), nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE 1=1 AND s.id IN ($1, $2)")).
		WithArgs("stu-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{}, []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE s.id = $1")).
		WithArgs("stu-1").
		WillReturnRows(studentDetailRows().
			AddRow("stu-1", "Alice", time.Now(), nil, nil, nil, nil, "cls-1", nil, time.Now(), time.Now(), "Grade 5 - A"))

	detail, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", detail.Name)
	require.NotNil(t, detail.ClassName)
	assert.Equal(t, "Grade 5 - A", *detail.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE id = $1 LIMIT 1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByID(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{Name: "Alice", DOB: time.Now()}
	err := repo.Create(context.Background(), student)
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.False(t, student.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Student{ID: "stu-1", Name: "Alice Updated", DOB: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryIDsByClass(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM students WHERE class_id = $1")).
		WithArgs("cls-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1").AddRow("stu-2"))

	ids, err := repo.IDsByClass(context.Background(), "cls-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountByClass(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE class_id = $1")).
		WithArgs("cls-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(28))

	total, err := repo.CountByClass(context.Background(), "cls-1")
	require.NoError(t, err)
	assert.Equal(t, 28, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

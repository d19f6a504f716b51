package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `s.id, s.name, s.dob, s.email, s.phone, s.address, s.guardian_name, s.class_id, s.user_id, s.created_at, s.updated_at,
        CASE WHEN c.id IS NULL THEN NULL ELSE c.class_name || ' - ' || c.section END AS class_name`

// List returns students matching the provided filters plus a total
// count. A non-nil allowedIDs restricts results to that id set.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter, allowedIDs []string) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN classes c ON c.id = s.class_id"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassID != "" {
		conditions = append(conditions, "s.class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		conditions = append(conditions, "LOWER(s.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if allowedIDs != nil {
		conditions = append(conditions, "s.id IN (?)")
		args = append(args, allowedIDs)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY s.name ASC LIMIT %d OFFSET %d", studentDetailColumns, base, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build student query: %w", err)
	}
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build student count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE s.id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByID reports whether a student row exists.
func (r *StudentRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM students WHERE id = $1 LIMIT 1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, dob, email, phone, address, guardian_name, class_id, user_id, created_at, updated_at)
        VALUES (:id, :name, :dob, :email, :phone, :address, :guardian_name, :class_id, :user_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites an existing student row.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, dob = :dob, email = :email, phone = :phone, address = :address,
        guardian_name = :guardian_name, class_id = :class_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student record.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// ListByClass returns all students enrolled in a class.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE s.class_id = $1 ORDER BY s.name ASC`, studentDetailColumns)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// IDsByClass returns the ids of all students enrolled in a class.
func (r *StudentRepository) IDsByClass(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM students WHERE class_id = $1", classID); err != nil {
		return nil, fmt.Errorf("list class student ids: %w", err)
	}
	return ids, nil
}

// Count returns the total number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// CountByClass returns the number of students enrolled in a class.
func (r *StudentRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students WHERE class_id = $1", classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return total, nil
}

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

// TeacherRepository manages persistence for teacher records.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherDetailColumns = `t.id, t.name, t.email, t.phone, t.subject_id, t.qualification, t.experience_years, t.user_id, t.created_at, t.updated_at,
        sub.subject_name AS subject_name`

// List returns teachers matching the provided filters plus a total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error) {
	base := "FROM teachers t LEFT JOIN subjects sub ON sub.id = t.subject_id"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("t.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(t.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY t.name ASC LIMIT %d OFFSET %d", teacherDetailColumns, base, where, limit, offset)
	var teachers []models.TeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher detail by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers t LEFT JOIN subjects sub ON sub.id = t.subject_id WHERE t.id = $1", teacherDetailColumns)
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByID reports whether a teacher row exists.
func (r *TeacherRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM teachers WHERE id = $1 LIMIT 1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return true, nil
}

// EmailExists checks for another teacher using the email.
func (r *TeacherRepository) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE email = $1"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var one int
	err := r.db.GetContext(ctx, &one, query+" LIMIT 1", args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher email: %w", err)
	}
	return true, nil
}

// Create inserts a new teacher record.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, name, email, phone, subject_id, qualification, experience_years, user_id, created_at, updated_at)
        VALUES (:id, :name, :email, :phone, :subject_id, :qualification, :experience_years, :user_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update rewrites an existing teacher row.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET name = :name, email = :email, phone = :phone, subject_id = :subject_id,
        qualification = :qualification, experience_years = :experience_years, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// Count returns the total number of teachers.
func (r *TeacherRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM teachers"); err != nil {
		return 0, fmt.Errorf("count teachers: %w", err)
	}
	return total, nil
}

// Delete removes a teacher record.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}

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

// ClassRepository manages persistence for class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classDetailColumns = `cl.id, cl.class_name, cl.section, cl.academic_year, cl.teacher_id, cl.created_at, cl.updated_at,
        t.name AS teacher_name,
        (SELECT COUNT(*) FROM students st WHERE st.class_id = cl.id) AS student_count`

// List returns classes matching the filters plus a total count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := "FROM classes cl LEFT JOIN teachers t ON t.id = cl.teacher_id"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("cl.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY cl.class_name, cl.section LIMIT %d OFFSET %d", classDetailColumns, base, where, limit, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class detail by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM classes cl LEFT JOIN teachers t ON t.id = cl.teacher_id WHERE cl.id = $1", classDetailColumns)
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByID reports whether a class row exists.
func (r *ClassRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM classes WHERE id = $1 LIMIT 1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class: %w", err)
	}
	return true, nil
}

// NameTaken checks the (class_name, section, academic_year) uniqueness
// rule, optionally excluding one class id.
func (r *ClassRepository) NameTaken(ctx context.Context, name, section, year, excludeID string) (bool, error) {
	query := "SELECT 1 FROM classes WHERE class_name = $1 AND section = $2 AND academic_year = $3"
	args := []interface{}{name, section, year}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var one int
	err := r.db.GetContext(ctx, &one, query+" LIMIT 1", args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create inserts a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, class_name, section, academic_year, teacher_id, created_at, updated_at)
        VALUES (:id, :class_name, :section, :academic_year, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update rewrites an existing class row.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET class_name = :class_name, section = :section, academic_year = :academic_year,
        teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// SetTeacher assigns or clears the class teacher.
func (r *ClassRepository) SetTeacher(ctx context.Context, classID string, teacherID *string) error {
	const query = `UPDATE classes SET teacher_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, classID, teacherID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set class teacher: %w", err)
	}
	return nil
}

// Delete removes a class record.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// ListByTeacher returns the classes assigned to the teacher.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM classes cl LEFT JOIN teachers t ON t.id = cl.teacher_id WHERE cl.teacher_id = $1 ORDER BY cl.class_name, cl.section", classDetailColumns)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher classes: %w", err)
	}
	return classes, nil
}

// Count returns the total number of classes.
func (r *ClassRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM classes"); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return total, nil
}

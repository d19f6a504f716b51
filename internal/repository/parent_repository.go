package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// ParentRepository manages persistence for parent records and their
// student links.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs a ParentRepository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// List returns parents ordered by name plus a total count.
func (r *ParentRepository) List(ctx context.Context, page, pageSize int) ([]models.Parent, int, error) {
	limit, offset := pageBounds(page, pageSize)
	query := fmt.Sprintf("SELECT * FROM parents ORDER BY name ASC LIMIT %d OFFSET %d", limit, offset)
	var parents []models.Parent
	if err := r.db.SelectContext(ctx, &parents, query); err != nil {
		return nil, 0, fmt.Errorf("list parents: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM parents"); err != nil {
		return nil, 0, fmt.Errorf("count parents: %w", err)
	}
	return parents, total, nil
}

// FindByID fetches a parent by id.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, "SELECT * FROM parents WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &parent, nil
}

// EmailExists checks whether a parent already uses the email.
func (r *ParentRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM parents WHERE email = $1 LIMIT 1", email)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent email: %w", err)
	}
	return true, nil
}

// Create inserts a new parent record.
func (r *ParentRepository) Create(ctx context.Context, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = now
	}
	parent.UpdatedAt = now
	const query = `INSERT INTO parents (id, name, email, phone, occupation, user_id, created_at, updated_at)
        VALUES (:id, :name, :email, :phone, :occupation, :user_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, parent); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}

// Update rewrites an existing parent row.
func (r *ParentRepository) Update(ctx context.Context, parent *models.Parent) error {
	parent.UpdatedAt = time.Now().UTC()
	const query = `UPDATE parents SET name = :name, email = :email, phone = :phone, occupation = :occupation, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, parent); err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	return nil
}

// Delete removes a parent and all of its student links.
func (r *ParentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM parent_students WHERE parent_id = $1", id); err != nil {
		return fmt.Errorf("delete parent links: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM parents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete parent: %w", err)
	}
	return nil
}

// Count returns the total number of parents.
func (r *ParentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM parents"); err != nil {
		return 0, fmt.Errorf("count parents: %w", err)
	}
	return total, nil
}

// FindByUserID fetches the parent profile owned by a user account.
func (r *ParentRepository) FindByUserID(ctx context.Context, userID string) (*models.Parent, error) {
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, "SELECT * FROM parents WHERE user_id = $1", userID); err != nil {
		return nil, err
	}
	return &parent, nil
}

// LinkExists reports whether the parent is already linked to the student.
func (r *ParentRepository) LinkExists(ctx context.Context, parentID, studentID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM parent_students WHERE parent_id = $1 AND student_id = $2 LIMIT 1", parentID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return true, nil
}

// CreateLink attaches a student to a parent.
func (r *ParentRepository) CreateLink(ctx context.Context, link *models.ParentStudentLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	if link.Relationship == "" {
		link.Relationship = "Guardian"
	}
	const query = `INSERT INTO parent_students (id, parent_id, student_id, relationship, created_at)
        VALUES (:id, :parent_id, :student_id, :relationship, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("create parent link: %w", err)
	}
	return nil
}

// DeleteLink detaches a student from a parent. Returns the number of
// removed links so callers can 404 on a missing link.
func (r *ParentRepository) DeleteLink(ctx context.Context, parentID, studentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM parent_students WHERE parent_id = $1 AND student_id = $2", parentID, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete parent link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete parent link: %w", err)
	}
	return affected, nil
}

// ListChildren returns the student details linked to a parent.
func (r *ParentRepository) ListChildren(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM parent_students ps
        JOIN students s ON s.id = ps.student_id
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE ps.parent_id = $1 ORDER BY s.name ASC`, studentDetailColumns)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("list parent children: %w", err)
	}
	return students, nil
}

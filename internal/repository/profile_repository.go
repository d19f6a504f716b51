package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ProfileRepository resolves user accounts to their role profiles. It
// backs the policy engine's scoping decisions.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// StudentIDByUserID returns the student profile id linked to a user.
func (r *ProfileRepository) StudentIDByUserID(ctx context.Context, userID string) (string, error) {
	var id string
	if err := r.db.GetContext(ctx, &id, "SELECT id FROM students WHERE user_id = $1", userID); err != nil {
		return "", err
	}
	return id, nil
}

// TeacherIDByUserID returns the teacher profile id linked to a user.
func (r *ProfileRepository) TeacherIDByUserID(ctx context.Context, userID string) (string, error) {
	var id string
	if err := r.db.GetContext(ctx, &id, "SELECT id FROM teachers WHERE user_id = $1", userID); err != nil {
		return "", err
	}
	return id, nil
}

// ChildIDsByUserID returns the student ids linked to a parent user
// through the parent_students table.
func (r *ProfileRepository) ChildIDsByUserID(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT ps.student_id FROM parent_students ps
        JOIN parents p ON p.id = ps.parent_id
        WHERE p.user_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list linked children: %w", err)
	}
	return ids, nil
}

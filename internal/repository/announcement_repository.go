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

// AnnouncementRepository manages persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs an AnnouncementRepository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

const announcementColumns = `a.id, a.teacher_id, a.title, a.message, a.date, a.target_audience, a.class_id, a.is_urgent,
        a.created_at, a.updated_at`

// List returns announcements matching the filters plus a total count.
// Audiences narrows visibility for non-privileged callers.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if len(filter.Audiences) > 0 {
		conditions = append(conditions, "a.target_audience IN (?)")
		args = append(args, filter.Audiences)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, "(a.class_id IS NULL OR a.class_id = ?)")
		args = append(args, filter.ClassID)
	}
	if filter.Urgent != nil {
		conditions = append(conditions, "a.is_urgent = ?")
		args = append(args, *filter.Urgent)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM announcements a WHERE %s ORDER BY a.date DESC, a.created_at DESC LIMIT %d OFFSET %d",
			announcementColumns, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build announcements query: %w", err)
	}
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) FROM announcements a WHERE %s", where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build announcements count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// FindByID fetches an announcement by id.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements a WHERE a.id = $1", announcementColumns)
	var a models.Announcement
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, a *models.Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	const query = `INSERT INTO announcements (id, teacher_id, title, message, date, target_audience, class_id, is_urgent, created_at, updated_at)
        VALUES (:id, :teacher_id, :title, :message, :date, :target_audience, :class_id, :is_urgent, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update rewrites an existing announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, a *models.Announcement) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, message = :message, date = :date, target_audience = :target_audience,
        class_id = :class_id, is_urgent = :is_urgent, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

// Recent returns the newest announcements visible to the audiences.
func (r *AnnouncementRepository) Recent(ctx context.Context, audiences []string, limit int) ([]models.Announcement, error) {
	if limit <= 0 {
		limit = 5
	}
	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM announcements a WHERE a.target_audience IN (?) ORDER BY a.date DESC, a.created_at DESC LIMIT %d",
			announcementColumns, limit),
		audiences)
	if err != nil {
		return nil, fmt.Errorf("build recent announcements query: %w", err)
	}
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list recent announcements: %w", err)
	}
	return announcements, nil
}

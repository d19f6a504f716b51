package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// TimetableRepository manages persistence for timetable entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs a TimetableRepository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

const timetableDetailColumns = `t.id, t.class_id, t.subject_id, t.teacher_id, t.day, t.period_number, t.start_time, t.end_time,
        t.created_at, t.updated_at,
        c.class_name || ' - ' || c.section AS class_name,
        sub.name AS subject_name,
        te.name AS teacher_name`

const timetableDetailBase = `FROM timetable_entries t
        JOIN classes c ON c.id = t.class_id
        JOIN subjects sub ON sub.id = t.subject_id
        JOIN teachers te ON te.id = t.teacher_id`

// List returns timetable entries matching the filters, ordered by day and period.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("t.class_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("t.teacher_id = $%d", len(args)))
	}
	if filter.Day != "" {
		args = append(args, filter.Day)
		conditions = append(conditions, fmt.Sprintf("t.day = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s
        ORDER BY array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday'], t.day), t.period_number`,
		timetableDetailColumns, timetableDetailBase, strings.Join(conditions, " AND "))

	var entries []models.TimetableDetail
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// FindByID fetches a timetable entry detail by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE t.id = $1", timetableDetailColumns, timetableDetailBase)
	var detail models.TimetableDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// SlotTakenByClass reports whether the class already has an entry on the day and period.
func (r *TimetableRepository) SlotTakenByClass(ctx context.Context, classID, day string, period int, excludeID string) (bool, error) {
	const query = `SELECT id FROM timetable_entries WHERE class_id = $1 AND day = $2 AND period_number = $3 AND id <> $4 LIMIT 1`
	var id string
	err := r.db.GetContext(ctx, &id, query, classID, day, period, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check class slot: %w", err)
	}
	return true, nil
}

// SlotTakenByTeacher reports whether the teacher already teaches on the day and period.
func (r *TimetableRepository) SlotTakenByTeacher(ctx context.Context, teacherID, day string, period int, excludeID string) (bool, error) {
	const query = `SELECT id FROM timetable_entries WHERE teacher_id = $1 AND day = $2 AND period_number = $3 AND id <> $4 LIMIT 1`
	var id string
	err := r.db.GetContext(ctx, &id, query, teacherID, day, period, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check teacher slot: %w", err)
	}
	return true, nil
}

// Create inserts a new timetable entry.
func (r *TimetableRepository) Create(ctx context.Context, entry *models.TimetableEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	const query = `INSERT INTO timetable_entries (id, class_id, subject_id, teacher_id, day, period_number, start_time, end_time, created_at, updated_at)
        VALUES (:id, :class_id, :subject_id, :teacher_id, :day, :period_number, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create timetable entry: %w", err)
	}
	return nil
}

// Update rewrites an existing timetable entry.
func (r *TimetableRepository) Update(ctx context.Context, entry *models.TimetableEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_entries SET class_id = :class_id, subject_id = :subject_id, teacher_id = :teacher_id,
        day = :day, period_number = :period_number, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	return nil
}

// Delete removes a timetable entry.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM timetable_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete timetable entry: %w", err)
	}
	return nil
}

// ListForDay returns entries for a set of classes on one weekday, ordered by period.
func (r *TimetableRepository) ListForDay(ctx context.Context, classIDs []string, day string) ([]models.TimetableDetail, error) {
	if len(classIDs) == 0 {
		return []models.TimetableDetail{}, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(
		"SELECT %s %s WHERE t.class_id IN (?) AND t.day = ? ORDER BY t.period_number", timetableDetailColumns, timetableDetailBase),
		classIDs, day)
	if err != nil {
		return nil, fmt.Errorf("build day timetable query: %w", err)
	}
	var entries []models.TimetableDetail
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list day timetable: %w", err)
	}
	return entries, nil
}

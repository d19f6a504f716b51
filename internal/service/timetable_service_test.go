package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockTimetableRepo struct {
	entries        map[string]*models.TimetableDetail
	listed         []models.TimetableDetail
	lastFilter     models.TimetableFilter
	classTaken     bool
	teacherTaken   bool
	created        *models.TimetableEntry
	updated        *models.TimetableEntry
	deletedID      string
	lastExcludedID string
}

func (m *mockTimetableRepo) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error) {
	m.lastFilter = filter
	return m.listed, nil
}

func (m *mockTimetableRepo) FindByID(ctx context.Context, id string) (*models.TimetableDetail, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return entry, nil
}

func (m *mockTimetableRepo) SlotTakenByClass(ctx context.Context, classID, day string, period int, excludeID string) (bool, error) {
	m.lastExcludedID = excludeID
	return m.classTaken, nil
}

func (m *mockTimetableRepo) SlotTakenByTeacher(ctx context.Context, teacherID, day string, period int, excludeID string) (bool, error) {
	return m.teacherTaken, nil
}

func (m *mockTimetableRepo) Create(ctx context.Context, entry *models.TimetableEntry) error {
	entry.ID = "tt-1"
	m.created = entry
	if m.entries == nil {
		m.entries = make(map[string]*models.TimetableDetail)
	}
	m.entries[entry.ID] = &models.TimetableDetail{TimetableEntry: *entry}
	return nil
}

func (m *mockTimetableRepo) Update(ctx context.Context, entry *models.TimetableEntry) error {
	m.updated = entry
	m.entries[entry.ID] = &models.TimetableDetail{TimetableEntry: *entry}
	return nil
}

func (m *mockTimetableRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

type mockClassChecker struct {
	exists bool
}

func (m *mockClassChecker) ExistsByID(ctx context.Context, id string) (bool, error) {
	return m.exists, nil
}

type mockSubjectRepo struct {
	subject *models.Subject
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if m.subject == nil {
		return nil, sql.ErrNoRows
	}
	return m.subject, nil
}

type mockTeacherChecker struct {
	exists bool
}

func (m *mockTeacherChecker) ExistsByID(ctx context.Context, id string) (bool, error) {
	return m.exists, nil
}

func newTimetableService(repo *mockTimetableRepo, classTaken bool) (*TimetableService, *mockTimetableRepo) {
	if repo == nil {
		repo = &mockTimetableRepo{}
	}
	repo.classTaken = repo.classTaken || classTaken
	svc := NewTimetableService(
		repo,
		&mockClassChecker{exists: true},
		&mockSubjectRepo{subject: &models.Subject{ID: "sub-1", SubjectName: "Math", ClassID: "cls-1"}},
		&mockTeacherChecker{exists: true},
		validator.New(),
		zap.NewNop(),
	)
	return svc, repo
}

func timetableRequest() CreateTimetableRequest {
	return CreateTimetableRequest{
		ClassID:      "cls-1",
		SubjectID:    "sub-1",
		TeacherID:    "tch-1",
		Day:          "monday",
		PeriodNumber: 3,
		StartTime:    "10:00",
		EndTime:      "10:45",
	}
}

func TestTimetableCreate(t *testing.T) {
	svc, repo := newTimetableService(nil, false)

	detail, err := svc.Create(context.Background(), timetableRequest())
	require.NoError(t, err)
	assert.Equal(t, "monday", detail.Day)
	assert.Equal(t, 3, detail.PeriodNumber)
	require.NotNil(t, repo.created)
}

func TestTimetableCreateClassSlotConflict(t *testing.T) {
	svc, repo := newTimetableService(nil, true)

	_, err := svc.Create(context.Background(), timetableRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestTimetableCreateTeacherDoubleBooked(t *testing.T) {
	repo := &mockTimetableRepo{teacherTaken: true}
	svc, _ := newTimetableService(repo, false)

	_, err := svc.Create(context.Background(), timetableRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableCreateInvalidDay(t *testing.T) {
	svc, _ := newTimetableService(nil, false)

	req := timetableRequest()
	req.Day = "Monday"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableCreateSubjectClassMismatch(t *testing.T) {
	repo := &mockTimetableRepo{}
	svc := NewTimetableService(
		repo,
		&mockClassChecker{exists: true},
		&mockSubjectRepo{subject: &models.Subject{ID: "sub-1", ClassID: "cls-other"}},
		&mockTeacherChecker{exists: true},
		validator.New(),
		zap.NewNop(),
	)

	_, err := svc.Create(context.Background(), timetableRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableUpdateExcludesOwnSlot(t *testing.T) {
	repo := &mockTimetableRepo{entries: map[string]*models.TimetableDetail{
		"tt-1": {TimetableEntry: models.TimetableEntry{ID: "tt-1", ClassID: "cls-1", Day: "monday", PeriodNumber: 3}},
	}}
	svc, _ := newTimetableService(repo, false)

	period := 4
	detail, err := svc.Update(context.Background(), "tt-1", UpdateTimetableRequest{PeriodNumber: &period})
	require.NoError(t, err)
	assert.Equal(t, 4, detail.PeriodNumber)
	assert.Equal(t, "monday", detail.Day)
	assert.Equal(t, "tt-1", repo.lastExcludedID, "the entry being updated must not conflict with itself")
}

func TestTimetableListRejectsBadDayFilter(t *testing.T) {
	svc, _ := newTimetableService(nil, false)

	_, err := svc.List(context.Background(), models.TimetableFilter{Day: "someday"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableDelete(t *testing.T) {
	repo := &mockTimetableRepo{entries: map[string]*models.TimetableDetail{
		"tt-1": {TimetableEntry: models.TimetableEntry{ID: "tt-1"}},
	}}
	svc, _ := newTimetableService(repo, false)

	require.NoError(t, svc.Delete(context.Background(), "tt-1"))
	assert.Equal(t, "tt-1", repo.deletedID)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

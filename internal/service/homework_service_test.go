package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockHomeworkRepo struct {
	homework    map[string]*models.HomeworkDetail
	listed      []models.HomeworkDetail
	total       int
	lastFilter  models.HomeworkFilter
	created     *models.Homework
	updated     *models.Homework
	deletedID   string
	submissions map[string]*models.HomeworkSubmission
	subExists   bool
	subCreated  *models.HomeworkSubmission
	subsForHW   []models.HomeworkSubmission
	gradedID    string
	gradedGrade string
}

func (m *mockHomeworkRepo) List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkDetail, int, error) {
	m.lastFilter = filter
	return m.listed, m.total, nil
}

func (m *mockHomeworkRepo) FindByID(ctx context.Context, id string) (*models.HomeworkDetail, error) {
	hw, ok := m.homework[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *hw
	return &cp, nil
}

func (m *mockHomeworkRepo) Create(ctx context.Context, hw *models.Homework) error {
	hw.ID = "hw-1"
	m.created = hw
	if m.homework == nil {
		m.homework = make(map[string]*models.HomeworkDetail)
	}
	m.homework[hw.ID] = &models.HomeworkDetail{Homework: *hw}
	return nil
}

func (m *mockHomeworkRepo) Update(ctx context.Context, hw *models.Homework) error {
	m.updated = hw
	m.homework[hw.ID] = &models.HomeworkDetail{Homework: *hw}
	return nil
}

func (m *mockHomeworkRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func (m *mockHomeworkRepo) CreateSubmission(ctx context.Context, sub *models.HomeworkSubmission) error {
	sub.ID = "sub-1"
	m.subCreated = sub
	return nil
}

func (m *mockHomeworkRepo) SubmissionExists(ctx context.Context, homeworkID, studentID string) (bool, error) {
	return m.subExists, nil
}

func (m *mockHomeworkRepo) FindSubmission(ctx context.Context, id string) (*models.HomeworkSubmission, error) {
	sub, ok := m.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *sub
	return &cp, nil
}

func (m *mockHomeworkRepo) ListSubmissions(ctx context.Context, homeworkID string) ([]models.HomeworkSubmission, error) {
	return m.subsForHW, nil
}

func (m *mockHomeworkRepo) GradeSubmission(ctx context.Context, id string, grade string, feedback *string) error {
	m.gradedID = id
	m.gradedGrade = grade
	return nil
}

func newHomeworkService(repo *mockHomeworkRepo, students *mockStudentRepo, subjects *mockSubjectRepo, resolver *mockLinkResolver) *HomeworkService {
	if students == nil {
		students = &mockStudentRepo{}
	}
	if subjects == nil {
		subjects = &mockSubjectRepo{subject: &models.Subject{ID: "sub-math", SubjectName: "Math", ClassID: "cls-1"}}
	}
	if resolver == nil {
		resolver = &mockLinkResolver{}
	}
	engine := policy.NewEngine(resolver, zap.NewNop())
	return NewHomeworkService(repo, students, &mockClassChecker{exists: true}, subjects, &mockTeacherChecker{exists: true}, engine, validator.New(), zap.NewNop())
}

func homeworkFixture(classID string) *models.HomeworkDetail {
	return &models.HomeworkDetail{Homework: models.Homework{
		ID:        "hw-1",
		ClassID:   classID,
		TeacherID: "tch-1",
		SubjectID: "sub-math",
		Title:     "Fractions",
		DueDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}}
}

func TestHomeworkCreateTeacherAuthorsAsSelf(t *testing.T) {
	repo := &mockHomeworkRepo{}
	resolver := &mockLinkResolver{teacherID: "tch-1"}
	svc := newHomeworkService(repo, nil, nil, resolver)

	detail, err := svc.Create(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher}, CreateHomeworkRequest{
		ClassID:     "cls-1",
		SubjectID:   "sub-math",
		TeacherID:   "tch-9",
		Title:       "Fractions",
		Description: "Worksheet 4",
		DueDate:     "2026-03-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "tch-1", detail.TeacherID, "the requested author is ignored for teachers")
}

func TestHomeworkCreateUnknownClass(t *testing.T) {
	repo := &mockHomeworkRepo{}
	resolver := &mockLinkResolver{teacherID: "tch-1"}
	svc := NewHomeworkService(repo, &mockStudentRepo{}, &mockClassChecker{exists: false},
		&mockSubjectRepo{subject: &models.Subject{ID: "sub-math", ClassID: "cls-1"}},
		&mockTeacherChecker{exists: true}, policy.NewEngine(resolver, zap.NewNop()), validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher}, CreateHomeworkRequest{
		ClassID:     "ghost",
		SubjectID:   "sub-math",
		Title:       "Fractions",
		Description: "Worksheet 4",
		DueDate:     "2026-03-10",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestHomeworkCreateSubjectFromAnotherClass(t *testing.T) {
	repo := &mockHomeworkRepo{}
	resolver := &mockLinkResolver{teacherID: "tch-1"}
	subjects := &mockSubjectRepo{subject: &models.Subject{ID: "sub-math", ClassID: "cls-2"}}
	svc := newHomeworkService(repo, nil, subjects, resolver)

	_, err := svc.Create(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher}, CreateHomeworkRequest{
		ClassID:     "cls-1",
		SubjectID:   "sub-math",
		Title:       "Fractions",
		Description: "Worksheet 4",
		DueDate:     "2026-03-10",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestHomeworkCreateUnknownSubject(t *testing.T) {
	repo := &mockHomeworkRepo{}
	resolver := &mockLinkResolver{teacherID: "tch-1"}
	svc := newHomeworkService(repo, nil, &mockSubjectRepo{}, resolver)

	_, err := svc.Create(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher}, CreateHomeworkRequest{
		ClassID:     "cls-1",
		SubjectID:   "ghost",
		Title:       "Fractions",
		Description: "Worksheet 4",
		DueDate:     "2026-03-10",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestHomeworkGetDeniedOutsideOwnClass(t *testing.T) {
	classID := "cls-2"
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &classID}},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newHomeworkService(repo, students, nil, resolver)

	_, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "hw-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestHomeworkGetAllowedForOwnClass(t *testing.T) {
	classID := "cls-1"
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &classID}},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newHomeworkService(repo, students, nil, resolver)

	detail, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "hw-1")
	require.NoError(t, err)
	assert.Equal(t, "hw-1", detail.ID)
}

func TestHomeworkListScopesParentToChildrenClasses(t *testing.T) {
	class1, class2 := "cls-1", "cls-2"
	repo := &mockHomeworkRepo{}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &class1}},
		"stu-2": {Student: models.Student{ID: "stu-2", ClassID: &class2}},
	}}
	resolver := &mockLinkResolver{childIDs: []string{"stu-1", "stu-2"}}
	svc := newHomeworkService(repo, students, nil, resolver)

	_, err := svc.List(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleParent}, models.HomeworkFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cls-1", "cls-2"}, repo.lastFilter.ClassIDs)
}

func TestHomeworkUpdateKeepsOmittedFields(t *testing.T) {
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	svc := newHomeworkService(repo, nil, nil, nil)

	title := "Fractions II"
	detail, err := svc.Update(context.Background(), policy.Principal{Role: models.RoleAdmin}, "hw-1", UpdateHomeworkRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Fractions II", detail.Title)
	assert.Equal(t, "cls-1", detail.ClassID)
	assert.Equal(t, "sub-math", detail.SubjectID)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), detail.DueDate)
}

func TestHomeworkUpdateOnlyAuthorOrPrivileged(t *testing.T) {
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	resolver := &mockLinkResolver{teacherID: "tch-2"}
	svc := newHomeworkService(repo, nil, nil, resolver)

	title := "Fractions II"
	_, err := svc.Update(context.Background(), policy.Principal{UserID: "u2", Role: models.RoleTeacher}, "hw-1", UpdateHomeworkRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestHomeworkSubmitWrongClass(t *testing.T) {
	classID := "cls-2"
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &classID}},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newHomeworkService(repo, students, nil, resolver)

	text := "done"
	_, err := svc.Submit(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "hw-1", SubmitHomeworkRequest{TextContent: &text})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.subCreated)
}

func TestHomeworkSubmitDuplicate(t *testing.T) {
	classID := "cls-1"
	repo := &mockHomeworkRepo{
		homework:  map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")},
		subExists: true,
	}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &classID}},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newHomeworkService(repo, students, nil, resolver)

	text := "done"
	_, err := svc.Submit(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "hw-1", SubmitHomeworkRequest{TextContent: &text})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestHomeworkSubmit(t *testing.T) {
	classID := "cls-1"
	repo := &mockHomeworkRepo{homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")}}
	students := &mockStudentRepo{students: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", ClassID: &classID}},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newHomeworkService(repo, students, nil, resolver)

	text := "done"
	sub, err := svc.Submit(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "hw-1", SubmitHomeworkRequest{TextContent: &text})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", sub.StudentID)
	assert.Equal(t, "hw-1", sub.HomeworkID)
}

func TestHomeworkGradeSubmissionOnlyAuthor(t *testing.T) {
	repo := &mockHomeworkRepo{
		homework: map[string]*models.HomeworkDetail{"hw-1": homeworkFixture("cls-1")},
		submissions: map[string]*models.HomeworkSubmission{
			"sub-1": {ID: "sub-1", HomeworkID: "hw-1", StudentID: "stu-1"},
		},
	}
	resolver := &mockLinkResolver{teacherID: "tch-2"}
	svc := newHomeworkService(repo, nil, nil, resolver)

	_, err := svc.GradeSubmission(context.Background(), policy.Principal{UserID: "u2", Role: models.RoleTeacher}, "sub-1", GradeSubmissionRequest{Grade: "A"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	resolver.teacherID = "tch-1"
	sub, err := svc.GradeSubmission(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher}, "sub-1", GradeSubmissionRequest{Grade: "A"})
	require.NoError(t, err)
	require.NotNil(t, sub.Grade)
	assert.Equal(t, "A", *sub.Grade)
	assert.Equal(t, "sub-1", repo.gradedID)
}

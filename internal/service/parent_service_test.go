package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockParentRepo struct {
	parents    map[string]*models.Parent
	emailTaken bool
	created    *models.Parent
	createErr  error
	updated    *models.Parent
	deletedID  string
	linked     bool
	links      []*models.ParentStudentLink
	unlinked   int64
	children   []models.StudentDetail
}

func (m *mockParentRepo) List(ctx context.Context, page, pageSize int) ([]models.Parent, int, error) {
	return nil, 0, nil
}

func (m *mockParentRepo) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	parent, ok := m.parents[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *parent
	return &cp, nil
}

func (m *mockParentRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return m.emailTaken, nil
}

func (m *mockParentRepo) Create(ctx context.Context, parent *models.Parent) error {
	if m.createErr != nil {
		return m.createErr
	}
	parent.ID = "par-1"
	m.created = parent
	if m.parents == nil {
		m.parents = make(map[string]*models.Parent)
	}
	m.parents[parent.ID] = parent
	return nil
}

func (m *mockParentRepo) Update(ctx context.Context, parent *models.Parent) error {
	m.updated = parent
	m.parents[parent.ID] = parent
	return nil
}

func (m *mockParentRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func (m *mockParentRepo) LinkExists(ctx context.Context, parentID, studentID string) (bool, error) {
	return m.linked, nil
}

func (m *mockParentRepo) CreateLink(ctx context.Context, link *models.ParentStudentLink) error {
	m.links = append(m.links, link)
	return nil
}

func (m *mockParentRepo) DeleteLink(ctx context.Context, parentID, studentID string) (int64, error) {
	return m.unlinked, nil
}

func (m *mockParentRepo) ListChildren(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	return m.children, nil
}

func newParentService(parents *mockParentRepo, users *mockAccountRepo, students *mockStudentChecker, notifier *mockWelcomeNotifier) *ParentService {
	if users == nil {
		users = &mockAccountRepo{}
	}
	if students == nil {
		students = &mockStudentChecker{exists: true}
	}
	if notifier == nil {
		notifier = &mockWelcomeNotifier{}
	}
	return NewParentService(parents, users, students, notifier, validator.New(), zap.NewNop())
}

func TestParentCreateProvisionsAccountAndLinks(t *testing.T) {
	repo := &mockParentRepo{}
	users := &mockAccountRepo{}
	notifier := &mockWelcomeNotifier{}
	svc := newParentService(repo, users, nil, notifier)

	detail, err := svc.Create(context.Background(), CreateParentRequest{
		Name:       "Carol",
		Email:      "carol@family.test",
		Phone:      "555-0101",
		StudentIDs: []string{"stu-1", "stu-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "par-1", detail.ID)

	require.NotNil(t, users.created)
	assert.Equal(t, models.RoleParent, users.created.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users.created.PasswordHash), []byte("555-0101")),
		"initial password is the phone number")

	require.Len(t, repo.links, 2)
	assert.Equal(t, "stu-1", repo.links[0].StudentID)
	assert.Equal(t, "carol@family.test", notifier.email)
	assert.Equal(t, "555-0101", notifier.password)
}

func TestParentCreateDuplicateEmail(t *testing.T) {
	repo := &mockParentRepo{emailTaken: true}
	users := &mockAccountRepo{}
	svc := newParentService(repo, users, nil, nil)

	_, err := svc.Create(context.Background(), CreateParentRequest{
		Name:  "Carol",
		Email: "carol@family.test",
		Phone: "555-0101",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, users.created)
}

func TestParentCreateUnknownStudent(t *testing.T) {
	repo := &mockParentRepo{}
	svc := newParentService(repo, nil, &mockStudentChecker{exists: false}, nil)

	_, err := svc.Create(context.Background(), CreateParentRequest{
		Name:       "Carol",
		Email:      "carol@family.test",
		Phone:      "555-0101",
		StudentIDs: []string{"ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestParentCreateCleansUpOrphanAccount(t *testing.T) {
	repo := &mockParentRepo{createErr: errors.New("insert failed")}
	users := &mockAccountRepo{}
	svc := newParentService(repo, users, nil, nil)

	_, err := svc.Create(context.Background(), CreateParentRequest{
		Name:  "Carol",
		Email: "carol@family.test",
		Phone: "555-0101",
	})
	require.Error(t, err)
	assert.Equal(t, "usr-1", users.deletedID, "the account must not outlive the failed profile insert")
}

func TestParentUpdateKeepsOmittedFields(t *testing.T) {
	occupation := "engineer"
	repo := &mockParentRepo{parents: map[string]*models.Parent{
		"par-1": {ID: "par-1", Name: "Carol", Email: "carol@family.test", Phone: "555-0101", Occupation: &occupation},
	}}
	svc := newParentService(repo, nil, nil, nil)

	phone := "555-0202"
	detail, err := svc.Update(context.Background(), "par-1", UpdateParentRequest{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "555-0202", detail.Phone)
	assert.Equal(t, "Carol", detail.Name)
	assert.Equal(t, "carol@family.test", detail.Email, "email stays immutable")
	require.NotNil(t, detail.Occupation)
	assert.Equal(t, "engineer", *detail.Occupation)
}

func TestParentLinkStudentDuplicate(t *testing.T) {
	repo := &mockParentRepo{
		parents: map[string]*models.Parent{"par-1": {ID: "par-1", Name: "Carol"}},
		linked:  true,
	}
	svc := newParentService(repo, nil, nil, nil)

	err := svc.LinkStudent(context.Background(), "par-1", LinkStudentRequest{StudentID: "stu-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.links)
}

func TestParentUnlinkStudentMissingLink(t *testing.T) {
	repo := &mockParentRepo{unlinked: 0}
	svc := newParentService(repo, nil, nil, nil)

	err := svc.UnlinkStudent(context.Background(), "par-1", "stu-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestParentDeleteRemovesAccount(t *testing.T) {
	userID := "usr-7"
	repo := &mockParentRepo{parents: map[string]*models.Parent{
		"par-1": {ID: "par-1", Name: "Carol", UserID: &userID},
	}}
	users := &mockAccountRepo{}
	svc := newParentService(repo, users, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "par-1"))
	assert.Equal(t, "par-1", repo.deletedID)
	assert.Equal(t, "usr-7", users.deletedID)
}

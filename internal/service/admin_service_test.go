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

type mockAdminUserRepo struct {
	users       map[string]*models.User
	emailExists bool
	created     *models.User
	setActive   map[string]bool
	deletedID   string
}

func (m *mockAdminUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "adm-1"
	m.created = user
	return nil
}

func (m *mockAdminUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAdminUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return m.emailExists, nil
}

func (m *mockAdminUserRepo) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockAdminUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.setActive == nil {
		m.setActive = make(map[string]bool)
	}
	m.setActive[id] = active
	return nil
}

func (m *mockAdminUserRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func TestAdminCreateStartsInactive(t *testing.T) {
	repo := &mockAdminUserRepo{}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	info, err := svc.CreateAdmin(context.Background(), CreateAdminRequest{Email: "admin@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, info.Role)
	assert.False(t, info.IsActive, "new admins wait for master approval")
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "secret123", repo.created.PasswordHash)
}

func TestAdminCreateDuplicateEmail(t *testing.T) {
	repo := &mockAdminUserRepo{emailExists: true}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	_, err := svc.CreateAdmin(context.Background(), CreateAdminRequest{Email: "dup@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAdminApproveAndDeactivate(t *testing.T) {
	repo := &mockAdminUserRepo{users: map[string]*models.User{
		"adm-1": {ID: "adm-1", Role: models.RoleAdmin, IsActive: false},
	}}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.ApproveAdmin(context.Background(), "adm-1"))
	assert.True(t, repo.setActive["adm-1"])

	require.NoError(t, svc.DeactivateAdmin(context.Background(), "adm-1"))
	assert.False(t, repo.setActive["adm-1"])
}

func TestAdminApproveRejectsNonAdminAccounts(t *testing.T) {
	repo := &mockAdminUserRepo{users: map[string]*models.User{
		"usr-1": {ID: "usr-1", Role: models.RoleStudent},
	}}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	err := svc.ApproveAdmin(context.Background(), "usr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAdminDelete(t *testing.T) {
	repo := &mockAdminUserRepo{users: map[string]*models.User{
		"adm-1": {ID: "adm-1", Role: models.RoleAdmin},
	}}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.DeleteAdmin(context.Background(), "adm-1"))
	assert.Equal(t, "adm-1", repo.deletedID)

	err := svc.DeleteAdmin(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAdminList(t *testing.T) {
	repo := &mockAdminUserRepo{users: map[string]*models.User{
		"adm-1": {ID: "adm-1", Email: "a@example.com", Role: models.RoleAdmin, IsActive: true},
		"usr-1": {ID: "usr-1", Email: "s@example.com", Role: models.RoleStudent},
	}}
	svc := NewAdminService(repo, validator.New(), zap.NewNop())

	admins, err := svc.ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "a@example.com", admins[0].Email)
}

package policy

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockResolver struct {
	studentID    string
	studentErr   error
	teacherID    string
	teacherErr   error
	childIDs     []string
	childIDsErr  error
	studentCalls int
}

func (m *mockResolver) StudentIDByUserID(ctx context.Context, userID string) (string, error) {
	m.studentCalls++
	if m.studentErr != nil {
		return "", m.studentErr
	}
	return m.studentID, nil
}

func (m *mockResolver) TeacherIDByUserID(ctx context.Context, userID string) (string, error) {
	if m.teacherErr != nil {
		return "", m.teacherErr
	}
	return m.teacherID, nil
}

func (m *mockResolver) ChildIDsByUserID(ctx context.Context, userID string) ([]string, error) {
	if m.childIDsErr != nil {
		return nil, m.childIDsErr
	}
	return m.childIDs, nil
}

func TestStudentScopePrivilegedRolesUnrestricted(t *testing.T) {
	engine := NewEngine(&mockResolver{}, zap.NewNop())

	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleMaster, models.RoleTeacher} {
		scope, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: role})
		require.NoError(t, err)
		assert.True(t, scope.Unrestricted, "role %s", role)
	}
}

func TestStudentScopeStudentOwnProfile(t *testing.T) {
	resolver := &mockResolver{studentID: "stu-1"}
	engine := NewEngine(resolver, zap.NewNop())

	scope, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.False(t, scope.Unrestricted)
	assert.Equal(t, []string{"stu-1"}, scope.StudentIDs)
}

func TestStudentScopeStudentWithoutProfile(t *testing.T) {
	resolver := &mockResolver{studentErr: sql.ErrNoRows}
	engine := NewEngine(resolver, zap.NewNop())

	scope, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.False(t, scope.Unrestricted)
	assert.Empty(t, scope.StudentIDs)
}

func TestStudentScopeParentChildren(t *testing.T) {
	resolver := &mockResolver{childIDs: []string{"stu-1", "stu-2"}}
	engine := NewEngine(resolver, zap.NewNop())

	scope, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: models.RoleParent})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-2"}, scope.StudentIDs)
}

func TestStudentScopeResolverFailure(t *testing.T) {
	resolver := &mockResolver{studentErr: errors.New("db down")}
	engine := NewEngine(resolver, zap.NewNop())

	_, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestStudentScopeUnknownRole(t *testing.T) {
	engine := NewEngine(&mockResolver{}, zap.NewNop())

	_, err := engine.StudentScope(context.Background(), Principal{UserID: "u1", Role: models.UserRole("ghost")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthorizeStudent(t *testing.T) {
	resolver := &mockResolver{studentID: "stu-1"}
	engine := NewEngine(resolver, zap.NewNop())
	principal := Principal{UserID: "u1", Role: models.RoleStudent}

	require.NoError(t, engine.AuthorizeStudent(context.Background(), principal, "stu-1"))

	err := engine.AuthorizeStudent(context.Background(), principal, "stu-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthorizeStudentParent(t *testing.T) {
	resolver := &mockResolver{childIDs: []string{"stu-1", "stu-2"}}
	engine := NewEngine(resolver, zap.NewNop())
	principal := Principal{UserID: "u1", Role: models.RoleParent}

	require.NoError(t, engine.AuthorizeStudent(context.Background(), principal, "stu-2"))
	require.Error(t, engine.AuthorizeStudent(context.Background(), principal, "stu-3"))
}

func TestTeacherID(t *testing.T) {
	resolver := &mockResolver{teacherID: "tch-1"}
	engine := NewEngine(resolver, zap.NewNop())

	id, err := engine.TeacherID(context.Background(), Principal{UserID: "u1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, "tch-1", id)

	_, err = engine.TeacherID(context.Background(), Principal{UserID: "u1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTeacherIDMissingProfile(t *testing.T) {
	resolver := &mockResolver{teacherErr: sql.ErrNoRows}
	engine := NewEngine(resolver, zap.NewNop())

	_, err := engine.TeacherID(context.Background(), Principal{UserID: "u1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAuthorizeAuthor(t *testing.T) {
	own := "tch-1"
	other := "tch-2"

	resolver := &mockResolver{teacherID: own}
	engine := NewEngine(resolver, zap.NewNop())

	require.NoError(t, engine.AuthorizeAuthor(context.Background(), Principal{Role: models.RoleAdmin}, &other))
	require.NoError(t, engine.AuthorizeAuthor(context.Background(), Principal{Role: models.RoleMaster}, nil))
	require.NoError(t, engine.AuthorizeAuthor(context.Background(), Principal{UserID: "u1", Role: models.RoleTeacher}, &own))

	err := engine.AuthorizeAuthor(context.Background(), Principal{UserID: "u1", Role: models.RoleTeacher}, &other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = engine.AuthorizeAuthor(context.Background(), Principal{UserID: "u1", Role: models.RoleTeacher}, nil)
	require.Error(t, err)

	err = engine.AuthorizeAuthor(context.Background(), Principal{UserID: "u1", Role: models.RoleStudent}, &own)
	require.Error(t, err)
}

func TestFromClaims(t *testing.T) {
	p := FromClaims(nil)
	assert.Empty(t, p.UserID)

	p = FromClaims(&models.JWTClaims{UserID: "u1", Role: models.RoleParent, Email: "p@example.com"})
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, models.RoleParent, p.Role)
	assert.Equal(t, "p@example.com", p.Email)
}

func TestScopeContains(t *testing.T) {
	assert.True(t, Scope{Unrestricted: true}.Contains("anyone"))
	assert.True(t, Scope{StudentIDs: []string{"a", "b"}}.Contains("b"))
	assert.False(t, Scope{StudentIDs: []string{"a"}}.Contains("b"))
	assert.False(t, Scope{}.Contains("a"))
}

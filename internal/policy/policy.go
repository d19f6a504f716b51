// Package policy is the single decision point for role-scoped data
// access. Every resource service asks it which student records a caller
// may touch instead of re-implementing per-endpoint conditionals.
package policy

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

// Principal identifies an authenticated caller.
type Principal struct {
	UserID string
	Role   models.UserRole
	Email  string
}

// FromClaims builds a Principal from verified JWT claims.
func FromClaims(claims *models.JWTClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{UserID: claims.UserID, Role: claims.Role, Email: claims.Email}
}

// Scope restricts which student-owned rows a caller may read. When
// Unrestricted is false and StudentIDs is empty the caller has no
// linked profile; list endpoints return an empty result in that case.
type Scope struct {
	Unrestricted bool
	StudentIDs   []string
}

// Contains reports whether the scope covers the given student id.
func (s Scope) Contains(studentID string) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

type linkResolver interface {
	StudentIDByUserID(ctx context.Context, userID string) (string, error)
	TeacherIDByUserID(ctx context.Context, userID string) (string, error)
	ChildIDsByUserID(ctx context.Context, userID string) ([]string, error)
}

// Engine evaluates access decisions against profile links.
type Engine struct {
	resolver linkResolver
	logger   *zap.Logger
}

// NewEngine constructs a policy engine.
func NewEngine(resolver linkResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{resolver: resolver, logger: logger}
}

// StudentScope computes the set of student ids the caller may read.
// Teachers read unrestricted; ownership on their authored records is
// enforced separately by AuthorizeAuthor.
func (e *Engine) StudentScope(ctx context.Context, p Principal) (Scope, error) {
	switch p.Role {
	case models.RoleAdmin, models.RoleMaster, models.RoleTeacher:
		return Scope{Unrestricted: true}, nil
	case models.RoleStudent:
		id, err := e.resolver.StudentIDByUserID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Scope{}, nil
			}
			return Scope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve student profile")
		}
		return Scope{StudentIDs: []string{id}}, nil
	case models.RoleParent:
		ids, err := e.resolver.ChildIDsByUserID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Scope{}, nil
			}
			return Scope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve linked children")
		}
		return Scope{StudentIDs: ids}, nil
	}
	return Scope{}, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
}

// AuthorizeStudent checks direct access to one student's records.
// Illegal direct access yields a forbidden error, never an empty result.
func (e *Engine) AuthorizeStudent(ctx context.Context, p Principal, studentID string) error {
	scope, err := e.StudentScope(ctx, p)
	if err != nil {
		return err
	}
	if !scope.Contains(studentID) {
		e.logger.Warn("student access denied",
			zap.String("user_id", p.UserID),
			zap.String("role", string(p.Role)),
			zap.String("student_id", studentID),
		)
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this student's records")
	}
	return nil
}

// TeacherID resolves the caller's own teacher profile id.
func (e *Engine) TeacherID(ctx context.Context, p Principal) (string, error) {
	if p.Role != models.RoleTeacher {
		return "", appErrors.Clone(appErrors.ErrForbidden, "caller has no teacher profile")
	}
	id, err := e.resolver.TeacherIDByUserID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve teacher profile")
	}
	return id, nil
}

// AuthorizeAuthor permits admins and the authoring teacher to mutate a
// record carrying an optional teacher_id author reference.
func (e *Engine) AuthorizeAuthor(ctx context.Context, p Principal, authorTeacherID *string) error {
	if p.Role.Privileged() {
		return nil
	}
	if p.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	ownID, err := e.TeacherID(ctx, p)
	if err != nil {
		return err
	}
	if authorTeacherID == nil || *authorTeacherID != ownID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author may modify this record")
	}
	return nil
}

package service

import (
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

// scopedStudentIDs narrows a list filter to the caller's student scope.
// An explicit student filter naming ids outside the scope is rejected
// rather than silently replaced. The empty flag is set when the caller
// has no linked profile and the list must come back empty.
func scopedStudentIDs(scope policy.Scope, requested []string) (ids []string, empty bool, err error) {
	if scope.Unrestricted {
		return requested, false, nil
	}
	if len(requested) > 0 {
		for _, id := range requested {
			if !scope.Contains(id) {
				return nil, false, appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this student's records")
			}
		}
		return requested, false, nil
	}
	if len(scope.StudentIDs) == 0 {
		return nil, true, nil
	}
	return scope.StudentIDs, false, nil
}

// Package directory defines the lookup port for the user/course/class
// directory. The engine never owns rosters; it asks this collaborator.
package directory

import (
	"context"

	"github.com/classboard/notification-engine/internal/domain"
)

// Member is a resolved recipient identity with per-channel contact endpoints.
type Member struct {
	UserID    string
	Role      string
	Locale    string
	Endpoints map[domain.Channel]string
}

// Lookup resolves targeting criteria into concrete members. Implementations
// return current membership only; historical membership is out of scope.
type Lookup interface {
	// MembersByRole returns all current members of the named roles.
	MembersByRole(ctx context.Context, roles []string) ([]Member, error)
	// MembersByCourse returns currently-enrolled students of the courses,
	// plus the teachers when includeTeachers is set.
	MembersByCourse(ctx context.Context, courseIDs []string, includeTeachers bool) ([]Member, error)
	// MembersByClass returns all members of the classes.
	MembersByClass(ctx context.Context, classIDs []string) ([]Member, error)
	// MembersByID resolves explicit user ids. Unknown ids are omitted from
	// the result, not errored.
	MembersByID(ctx context.Context, userIDs []string) ([]Member, error)
}

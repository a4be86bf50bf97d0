package service

import (
	"context"
	"fmt"

	"github.com/classboard/notification-engine/internal/directory"
	"github.com/classboard/notification-engine/internal/domain"
)

// Audience is a resolved, deduplicated recipient set plus non-fatal
// per-recipient warnings gathered during resolution.
type Audience struct {
	Members  []directory.Member
	Warnings []string
}

// AudienceResolver turns a targeting spec into concrete recipients via the
// directory port. Targeting fields combine as a union deduplicated by user
// id; the first resolution of a user wins.
type AudienceResolver struct {
	lookup directory.Lookup
}

func NewAudienceResolver(lookup directory.Lookup) (*AudienceResolver, error) {
	if lookup == nil {
		return nil, fmt.Errorf("directory lookup is required")
	}
	return &AudienceResolver{lookup: lookup}, nil
}

// Resolve returns the audience for a targeting spec. An empty result is not
// an error: a spec may legitimately select nobody live. Unknown explicit
// user ids are dropped and reported as warnings.
func (r *AudienceResolver) Resolve(ctx context.Context, targeting domain.Targeting) (*Audience, error) {
	audience := &Audience{}
	seen := make(map[string]struct{})

	add := func(members []directory.Member) {
		for _, member := range members {
			if member.UserID == "" {
				continue
			}
			if _, ok := seen[member.UserID]; ok {
				continue
			}
			seen[member.UserID] = struct{}{}
			audience.Members = append(audience.Members, member)
		}
	}

	if len(targeting.Roles) > 0 {
		members, err := r.lookup.MembersByRole(ctx, targeting.Roles)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve roles: %w", err)
		}
		add(members)
	}

	if len(targeting.CourseIDs) > 0 {
		members, err := r.lookup.MembersByCourse(ctx, targeting.CourseIDs, targeting.IncludeTeachers)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve courses: %w", err)
		}
		add(members)
	}

	if len(targeting.ClassIDs) > 0 {
		members, err := r.lookup.MembersByClass(ctx, targeting.ClassIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve classes: %w", err)
		}
		add(members)
	}

	if len(targeting.UserIDs) > 0 {
		members, err := r.lookup.MembersByID(ctx, targeting.UserIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user ids: %w", err)
		}

		resolved := make(map[string]struct{}, len(members))
		for _, member := range members {
			resolved[member.UserID] = struct{}{}
		}
		for _, id := range targeting.UserIDs {
			if _, ok := resolved[id]; !ok {
				audience.Warnings = append(audience.Warnings, fmt.Sprintf("unknown user id %q dropped from audience", id))
			}
		}

		add(members)
	}

	return audience, nil
}

package bridge

import (
	"context"
	"errors"
	"fmt"
)

// Directory is the chat platform's membership and role surface.
// Implementations own the platform connection; callers never touch it.
type Directory interface {
	// FindCommunity resolves a community by id.
	// Returns ErrCommunityNotFound if it does not exist or is not visible.
	FindCommunity(ctx context.Context, communityID string) (*Community, error)

	// FindMember looks the member up in the (possibly stale) local cache.
	// Returns ErrMemberNotFound on a miss.
	FindMember(ctx context.Context, community *Community, memberID string) (*Member, error)

	// FindMemberAfterRefresh refreshes the directory for memberID and looks again.
	// Returns ErrMemberNotFound if the member is really absent.
	FindMemberAfterRefresh(ctx context.Context, community *Community, memberID string) (*Member, error)

	// FindRole resolves a role in the community.
	// Returns ErrRoleNotFound if the role does not exist.
	FindRole(ctx context.Context, community *Community, roleID string) (*Role, error)

	// AgentAuthority reports the acting agent's role management authority.
	AgentAuthority(ctx context.Context, community *Community) (*Authority, error)

	// GrantRole adds roleID to the member. Granting a held role is not an error.
	GrantRole(ctx context.Context, community *Community, member *Member, roleID string) error

	// RevokeRole removes roleID from the member. Revoking an absent role is not an error.
	RevokeRole(ctx context.Context, community *Community, member *Member, roleID string) error
}

// ResolveMember finds a member, falling back to exactly one directory refresh
// when the cache misses. Errors other than ErrMemberNotFound are returned as is.
func ResolveMember(ctx context.Context, dir Directory, community *Community, memberID string) (*Member, error) {
	member, err := dir.FindMember(ctx, community, memberID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}
	return dir.FindMemberAfterRefresh(ctx, community, memberID)
}

// CheckAuthority fails with ErrAuthorityDenied unless the agent can manage roles
// and role ranks strictly below the agent's highest role.
func CheckAuthority(auth *Authority, role *Role) error {
	if auth == nil || !auth.CanManageRoles {
		return fmt.Errorf("%w: missing manage roles permission", ErrAuthorityDenied)
	}
	if role.Managed {
		return fmt.Errorf("%w: role %s is managed by an integration", ErrAuthorityDenied, role.ID)
	}
	if role.Position >= auth.HighestPosition {
		return fmt.Errorf("%w: role %s (position %d) is not below agent position %d",
			ErrAuthorityDenied, role.ID, role.Position, auth.HighestPosition)
	}
	return nil
}

// Package discord implements bridge.Directory on top of a Discord bot session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// REST is the subset of *discordgo.Session REST calls the directory makes.
type REST interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Directory resolves guilds, members and roles from the gateway state cache,
// falling back to REST where the cache can be stale.
type Directory struct {
	rest    REST
	state   *discordgo.State
	logger  bridge.Logger
	refresh singleflight.Group
}

// NewDirectory builds a Directory. state is the session's gateway cache and
// must carry the bot user once the session is ready.
func NewDirectory(rest REST, state *discordgo.State, logger bridge.Logger) (*Directory, error) {
	if rest == nil {
		return nil, fmt.Errorf("discord rest client is required")
	}
	if state == nil {
		return nil, fmt.Errorf("discord state cache is required")
	}
	if logger == nil {
		logger = &bridge.NoopLogger{}
	}
	return &Directory{rest: rest, state: state, logger: logger}, nil
}

// FindCommunity implements bridge.Directory
func (d *Directory) FindCommunity(_ context.Context, communityID string) (*bridge.Community, error) {
	guild, err := d.state.Guild(communityID)
	if err != nil {
		guild, err = d.rest.Guild(communityID)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", bridge.ErrCommunityNotFound, communityID)
			}
			return nil, fmt.Errorf("%w: fetch guild %s: %w", bridge.ErrDirectoryOperation, communityID, err)
		}
		_ = d.state.GuildAdd(guild)
	}
	return &bridge.Community{ID: guild.ID, Name: guild.Name, OwnerID: guild.OwnerID}, nil
}

// FindMember implements bridge.Directory. It only consults the cache.
func (d *Directory) FindMember(_ context.Context, community *bridge.Community, memberID string) (*bridge.Member, error) {
	m, err := d.state.Member(community.ID, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not cached", bridge.ErrMemberNotFound, memberID)
	}
	return toMember(memberID, m), nil
}

// FindMemberAfterRefresh implements bridge.Directory. Concurrent refreshes
// for the same member share a single REST call.
func (d *Directory) FindMemberAfterRefresh(_ context.Context, community *bridge.Community, memberID string) (*bridge.Member, error) {
	v, err, shared := d.refresh.Do(community.ID+":"+memberID, func() (interface{}, error) {
		m, err := d.rest.GuildMember(community.ID, memberID)
		if err != nil {
			return nil, err
		}
		m.GuildID = community.ID
		if addErr := d.state.MemberAdd(m); addErr != nil {
			d.logger.Debug("member not cached after refresh",
				bridge.F("guild_id", community.ID), bridge.F("member_id", memberID), bridge.F("error", addErr.Error()))
		}
		return m, nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", bridge.ErrMemberNotFound, memberID)
		}
		return nil, fmt.Errorf("%w: fetch member %s: %w", bridge.ErrDirectoryOperation, memberID, err)
	}

	d.logger.Debug("member refreshed", bridge.F("member_id", memberID), bridge.F("shared", shared))
	return toMember(memberID, v.(*discordgo.Member)), nil
}

// FindRole implements bridge.Directory
func (d *Directory) FindRole(_ context.Context, community *bridge.Community, roleID string) (*bridge.Role, error) {
	if r, err := d.state.Role(community.ID, roleID); err == nil {
		return toRole(r), nil
	}

	roles, err := d.rest.GuildRoles(community.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch roles: %w", bridge.ErrDirectoryOperation, err)
	}
	var found *discordgo.Role
	for _, r := range roles {
		_ = d.state.RoleAdd(community.ID, r)
		if r.ID == roleID {
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", bridge.ErrRoleNotFound, roleID)
	}
	return toRole(found), nil
}

// AgentAuthority implements bridge.Directory. The guild owner outranks every role.
func (d *Directory) AgentAuthority(ctx context.Context, community *bridge.Community) (*bridge.Authority, error) {
	botID := d.botUserID()
	if botID == "" {
		return nil, fmt.Errorf("%w: bot user unknown, session not ready", bridge.ErrDirectoryOperation)
	}
	if community.OwnerID == botID {
		return &bridge.Authority{CanManageRoles: true, HighestPosition: math.MaxInt}, nil
	}

	bot, err := bridge.ResolveMember(ctx, d, community, botID)
	if err != nil {
		return nil, fmt.Errorf("%w: bot member: %w", bridge.ErrDirectoryOperation, err)
	}
	roles, err := d.guildRoles(community.ID)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(bot.RoleIDs)+1)
	held[community.ID] = true // @everyone shares the guild id
	for _, id := range bot.RoleIDs {
		held[id] = true
	}

	var perms int64
	highest := 0
	for _, r := range roles {
		if !held[r.ID] {
			continue
		}
		perms |= r.Permissions
		if r.Position > highest {
			highest = r.Position
		}
	}

	return &bridge.Authority{
		CanManageRoles:  perms&(discordgo.PermissionManageRoles|discordgo.PermissionAdministrator) != 0,
		HighestPosition: highest,
	}, nil
}

// GrantRole implements bridge.Directory. Discord treats adding a held role as success.
func (d *Directory) GrantRole(_ context.Context, community *bridge.Community, member *bridge.Member, roleID string) error {
	if err := d.rest.GuildMemberRoleAdd(community.ID, member.ID, roleID); err != nil {
		return fmt.Errorf("%w: add role %s to %s: %w", bridge.ErrDirectoryOperation, roleID, member.ID, err)
	}
	d.updateCachedRoles(community.ID, member.ID, roleID, true)
	return nil
}

// RevokeRole implements bridge.Directory. The call is made even when the
// cache says the role is absent, since the cache may be stale.
func (d *Directory) RevokeRole(_ context.Context, community *bridge.Community, member *bridge.Member, roleID string) error {
	if err := d.rest.GuildMemberRoleRemove(community.ID, member.ID, roleID); err != nil {
		if isNotFound(err) {
			// member left or role deleted meanwhile
			return nil
		}
		return fmt.Errorf("%w: remove role %s from %s: %w", bridge.ErrDirectoryOperation, roleID, member.ID, err)
	}
	d.updateCachedRoles(community.ID, member.ID, roleID, false)
	return nil
}

func (d *Directory) botUserID() string {
	d.state.RLock()
	defer d.state.RUnlock()
	if d.state.User == nil {
		return ""
	}
	return d.state.User.ID
}

func (d *Directory) guildRoles(guildID string) ([]*discordgo.Role, error) {
	if guild, err := d.state.Guild(guildID); err == nil {
		d.state.RLock()
		roles := append([]*discordgo.Role(nil), guild.Roles...)
		d.state.RUnlock()
		if len(roles) > 0 {
			return roles, nil
		}
	}
	roles, err := d.rest.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch roles: %w", bridge.ErrDirectoryOperation, err)
	}
	return roles, nil
}

func (d *Directory) updateCachedRoles(guildID, memberID, roleID string, add bool) {
	m, err := d.state.Member(guildID, memberID)
	if err != nil {
		return
	}
	updated := *m
	updated.Roles = make([]string, 0, len(m.Roles)+1)
	for _, id := range m.Roles {
		if id != roleID {
			updated.Roles = append(updated.Roles, id)
		}
	}
	if add {
		updated.Roles = append(updated.Roles, roleID)
	}
	updated.GuildID = guildID
	_ = d.state.MemberAdd(&updated)
}

func toMember(memberID string, m *discordgo.Member) *bridge.Member {
	id := memberID
	if m.User != nil && m.User.ID != "" {
		id = m.User.ID
	}
	return &bridge.Member{ID: id, RoleIDs: append([]string(nil), m.Roles...)}
}

func toRole(r *discordgo.Role) *bridge.Role {
	return &bridge.Role{ID: r.ID, Name: r.Name, Position: r.Position, Managed: r.Managed}
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

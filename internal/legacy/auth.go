package legacy

import (
	"context"

	"github.com/KafClaw/robotd/internal/auth"
)

// Authorization builds an auth.Service over the shared default config and
// the global store. Each call builds a new service.
func (g *Globals) Authorization() (*auth.Service, error) {
	store, err := g.Store()
	if err != nil {
		return nil, err
	}
	return auth.New(g.DefaultConfig(), store,
		auth.WithLogger(g.Logger()),
		auth.WithUserFinder(auth.NewDirectory(store.Namespace(auth.UsersNamespace))),
	), nil
}

// AddUserToGroup is the global form of auth.Service.AddUserToGroup.
//
// Deprecated: use auth.Service.AddUserToGroup.
func (g *Globals) AddUserToGroup(ctx context.Context, requester, user *auth.User, group any) (auth.Result, error) {
	g.deprecated("legacy.AddUserToGroup", "auth.Service.AddUserToGroup")
	svc, err := g.Authorization()
	if err != nil {
		return auth.Result{}, err
	}
	return svc.AddUserToGroup(ctx, requester, user, group)
}

// RemoveUserFromGroup is the global form of auth.Service.RemoveUserFromGroup.
//
// Deprecated: use auth.Service.RemoveUserFromGroup.
func (g *Globals) RemoveUserFromGroup(ctx context.Context, requester, user *auth.User, group any) (auth.Result, error) {
	g.deprecated("legacy.RemoveUserFromGroup", "auth.Service.RemoveUserFromGroup")
	svc, err := g.Authorization()
	if err != nil {
		return auth.Result{}, err
	}
	return svc.RemoveUserFromGroup(ctx, requester, user, group)
}

// UserInGroup is the global form of auth.Service.UserInGroup.
//
// Deprecated: use auth.Service.UserInGroup.
func (g *Globals) UserInGroup(ctx context.Context, user *auth.User, group any) (bool, error) {
	g.deprecated("legacy.UserInGroup", "auth.Service.UserInGroup")
	svc, err := g.Authorization()
	if err != nil {
		return false, err
	}
	return svc.UserInGroup(ctx, user, group)
}

// UserIsAdmin is the global form of auth.Service.UserIsAdmin. It needs no
// store and never fails.
//
// Deprecated: use auth.Service.UserIsAdmin.
func (g *Globals) UserIsAdmin(user *auth.User) bool {
	g.deprecated("legacy.UserIsAdmin", "auth.Service.UserIsAdmin")
	if user == nil {
		return false
	}
	return g.DefaultConfig().IsAdmin(user.ID)
}

// Groups is the global form of auth.Service.Groups.
//
// Deprecated: use auth.Service.Groups.
func (g *Globals) Groups(ctx context.Context) ([]string, error) {
	g.deprecated("legacy.Groups", "auth.Service.Groups")
	svc, err := g.Authorization()
	if err != nil {
		return nil, err
	}
	return svc.Groups(ctx)
}

// GroupsWithUsers is the global form of auth.Service.GroupsWithUsers.
//
// Deprecated: use auth.Service.GroupsWithUsers.
func (g *Globals) GroupsWithUsers(ctx context.Context) (map[string][]*auth.User, error) {
	g.deprecated("legacy.GroupsWithUsers", "auth.Service.GroupsWithUsers")
	svc, err := g.Authorization()
	if err != nil {
		return nil, err
	}
	return svc.GroupsWithUsers(ctx)
}

// AddUserToGroup calls Default().AddUserToGroup.
//
// Deprecated: use auth.Service.AddUserToGroup.
func AddUserToGroup(ctx context.Context, requester, user *auth.User, group any) (auth.Result, error) {
	return std.AddUserToGroup(ctx, requester, user, group)
}

// RemoveUserFromGroup calls Default().RemoveUserFromGroup.
//
// Deprecated: use auth.Service.RemoveUserFromGroup.
func RemoveUserFromGroup(ctx context.Context, requester, user *auth.User, group any) (auth.Result, error) {
	return std.RemoveUserFromGroup(ctx, requester, user, group)
}

// UserInGroup calls Default().UserInGroup.
//
// Deprecated: use auth.Service.UserInGroup.
func UserInGroup(ctx context.Context, user *auth.User, group any) (bool, error) {
	return std.UserInGroup(ctx, user, group)
}

// UserIsAdmin calls Default().UserIsAdmin.
//
// Deprecated: use auth.Service.UserIsAdmin.
func UserIsAdmin(user *auth.User) bool { return std.UserIsAdmin(user) }

// Groups calls Default().Groups.
//
// Deprecated: use auth.Service.Groups.
func Groups(ctx context.Context) ([]string, error) { return std.Groups(ctx) }

// GroupsWithUsers calls Default().GroupsWithUsers.
//
// Deprecated: use auth.Service.GroupsWithUsers.
func GroupsWithUsers(ctx context.Context) (map[string][]*auth.User, error) {
	return std.GroupsWithUsers(ctx)
}

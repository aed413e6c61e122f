// Package auth manages authorization groups: named sets of user IDs kept in
// the key-value store and mutated only by robot administrators.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/robotd/internal/config"
	"github.com/KafClaw/robotd/internal/kv"
)

// Namespace is the key-value namespace holding group sets.
const Namespace = "auth"

// UsersNamespace is the key-value namespace of the user Directory.
const UsersNamespace = "users"

// AdminsGroup is the virtual group derived from robot.admins.
const AdminsGroup = "admins"

// ErrNoUser is returned when a mutation targets a nil user.
var ErrNoUser = errors.New("no target user")

// Membership change actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Event describes one membership change.
type Event struct {
	Action      string    `json:"action"`
	Group       string    `json:"group"`
	UserID      string    `json:"user_id"`
	RequestedBy string    `json:"requested_by"`
	Robot       string    `json:"robot,omitempty"`
	Time        time.Time `json:"time"`
}

// Auditor receives membership changes after they are stored.
type Auditor interface {
	Record(ctx context.Context, ev Event) error
}

// Service queries and mutates authorization groups for one robot.
type Service struct {
	config  *config.RobotConfig
	store   kv.Store
	users   UserFinder
	auditor Auditor
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithUserFinder sets the lookup used by GroupsWithUsers.
func WithUserFinder(f UserFinder) Option {
	return func(s *Service) { s.users = f }
}

// WithAuditor sets the receiver of membership change events.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a Service over the "auth" namespace of store.
// Admin membership is read from cfg on every check.
func New(cfg *config.RobotConfig, store kv.Store, opts ...Option) *Service {
	s := &Service{
		config: cfg,
		store:  store.Namespace(Namespace),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.users == nil {
		s.users = UserFinderFunc(func(context.Context, string) (*User, error) { return nil, nil })
	}
	return s
}

// Config returns the configuration admin checks are made against.
func (s *Service) Config() *config.RobotConfig { return s.config }

// NormalizeGroup returns the stored form of a group name. A nil group is
// the empty name.
func NormalizeGroup(group any) string {
	if group == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(group)))
}

// AddUserToGroup adds user to group when requester is an admin.
// A group named "admins" may be written; it never grants admin rights.
// The Result is only meaningful when err is nil.
func (s *Service) AddUserToGroup(ctx context.Context, requester, user *User, group any) (Result, error) {
	return s.mutate(ctx, ActionAdd, requester, user, group)
}

// RemoveUserFromGroup removes user from group when requester is an admin.
func (s *Service) RemoveUserFromGroup(ctx context.Context, requester, user *User, group any) (Result, error) {
	return s.mutate(ctx, ActionRemove, requester, user, group)
}

func (s *Service) mutate(ctx context.Context, action string, requester, user *User, group any) (Result, error) {
	if !s.UserIsAdmin(requester) {
		return Unauthorized, nil
	}
	if user == nil {
		return Result{}, ErrNoUser
	}
	name := NormalizeGroup(group)

	var (
		changed bool
		err     error
	)
	if action == ActionAdd {
		changed, err = s.store.SAdd(ctx, name, user.ID)
	} else {
		changed, err = s.store.SRem(ctx, name, user.ID)
	}
	if err != nil {
		return Result{}, err
	}

	if changed {
		s.logger.Info("authorization group changed",
			"action", action, "group", name, "user_id", user.ID, "requested_by", requester.ID)
		s.audit(ctx, Event{
			Action:      action,
			Group:       name,
			UserID:      user.ID,
			RequestedBy: requester.ID,
			Robot:       s.config.Robot.Name,
			Time:        time.Now(),
		})
	}
	return Changed(changed), nil
}

// audit is best-effort; failures are logged and never change the result.
func (s *Service) audit(ctx context.Context, ev Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, ev); err != nil {
		s.logger.Warn("authorization audit failed", "group", ev.Group, "user_id", ev.UserID, "error", err)
	}
}

// UserInGroup reports whether user belongs to group. The "admins" group is
// answered from robot.admins and the store is not consulted.
func (s *Service) UserInGroup(ctx context.Context, user *User, group any) (bool, error) {
	name := NormalizeGroup(group)
	if name == AdminsGroup {
		return s.UserIsAdmin(user), nil
	}
	if user == nil {
		return false, nil
	}
	return s.store.SIsMember(ctx, name, user.ID)
}

// UserIsAdmin reports whether user's ID is listed in robot.admins.
func (s *Service) UserIsAdmin(user *User) bool {
	if user == nil {
		return false
	}
	return s.config.IsAdmin(user.ID)
}

// Groups returns every stored group name, sorted. A literal "admins" set is
// listed if one was written.
func (s *Service) Groups(ctx context.Context) ([]string, error) {
	return s.store.Keys(ctx, "*")
}

// GroupsWithUsers maps every stored group to its members resolved through
// the user finder. Unresolved IDs are kept as whatever the finder returned.
func (s *Service) GroupsWithUsers(ctx context.Context) (map[string][]*User, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*User, len(groups))
	for _, g := range groups {
		ids, err := s.store.SMembers(ctx, g)
		if err != nil {
			return nil, err
		}
		users := make([]*User, 0, len(ids))
		for _, id := range ids {
			u, err := s.users.FindByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("find user %s: %w", id, err)
			}
			users = append(users, u)
		}
		out[g] = users
	}
	return out, nil
}

// Package policy decides whether an inbound message may reach a handler.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KafClaw/robotd/internal/auth"
)

// Context holds information about a pending handler dispatch.
type Context struct {
	UserID   string
	UserName string
	Adapter  string
	Handler  string
	TraceID  string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow   bool
	Reason  string
	Ts      time.Time
	TraceID string
}

// Engine evaluates whether a dispatch should proceed.
type Engine interface {
	Evaluate(ctx context.Context, pc Context) (Decision, error)
}

// GroupChecker answers group membership questions.
type GroupChecker interface {
	UserInGroup(ctx context.Context, user *auth.User, group any) (bool, error)
}

// Restrictions returns the groups a handler is limited to; nil means
// unrestricted.
type Restrictions func(handler string) []string

// GroupEngine allows a restricted handler only for members of one of its
// groups. The virtual "admins" group is honoured through the checker.
type GroupEngine struct {
	Checker      GroupChecker
	Restrictions Restrictions
}

// NewGroupEngine returns an engine over checker and restrictions.
func NewGroupEngine(checker GroupChecker, restrictions Restrictions) *GroupEngine {
	return &GroupEngine{Checker: checker, Restrictions: restrictions}
}

// Evaluate checks the sender against the handler's groups.
func (e *GroupEngine) Evaluate(ctx context.Context, pc Context) (Decision, error) {
	d := Decision{Ts: time.Now(), TraceID: pc.TraceID}

	var groups []string
	if e.Restrictions != nil {
		groups = e.Restrictions(pc.Handler)
	}
	if len(groups) == 0 {
		d.Allow = true
		d.Reason = "unrestricted"
		return d, nil
	}
	if pc.UserID == "" {
		d.Reason = "anonymous_sender"
		return d, nil
	}

	user := &auth.User{ID: pc.UserID, Name: pc.UserName}
	for _, g := range groups {
		in, err := e.Checker.UserInGroup(ctx, user, g)
		if err != nil {
			return Decision{}, fmt.Errorf("check group %s: %w", g, err)
		}
		if in {
			d.Allow = true
			d.Reason = "member_of_" + auth.NormalizeGroup(g)
			return d, nil
		}
	}
	d.Reason = "requires_group: " + strings.Join(groups, ",")
	return d, nil
}

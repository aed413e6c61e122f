// Package authz is the built-in handler that lets administrators manage
// authorization groups from chat:
//
//	auth add <user id> <group>
//	auth remove <user id> <group>
//	auth list [group]
package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/KafClaw/robotd/internal/auth"
	"github.com/KafClaw/robotd/internal/bus"
	"github.com/KafClaw/robotd/internal/plugin"
)

const commandPrefix = "auth"

// Type is the registrable handler type.
var Type = &plugin.HandlerType{
	Name: "authorization",
	New: func(env plugin.Env) (plugin.Handler, error) {
		return New(env), nil
	},
}

// Register adds the authorization handler to r.
func Register(r *plugin.Registry) {
	r.RegisterHandler(Type)
}

// Handler answers "auth" commands.
type Handler struct {
	env plugin.Env
}

func New(env plugin.Env) *Handler {
	return &Handler{env: env}
}

// Handle runs the command in msg if it is an auth command addressed to the
// robot. Anything else is ignored.
func (h *Handler) Handle(ctx context.Context, msg *bus.InboundMessage) error {
	text, ok := addressed(h.env.Config().EffectiveMentionName(), h.env.Config().Robot.Alias, msg)
	if !ok {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], commandPrefix) {
		return nil
	}
	args := fields[1:]
	requester := &auth.User{ID: msg.UserID, Name: msg.UserName}

	var (
		reply string
		err   error
	)
	switch {
	case len(args) == 3 && strings.EqualFold(args[0], "add"):
		reply, err = h.mutate(ctx, auth.ActionAdd, requester, args[1], args[2])
	case len(args) == 3 && strings.EqualFold(args[0], "remove"):
		reply, err = h.mutate(ctx, auth.ActionRemove, requester, args[1], args[2])
	case len(args) >= 1 && len(args) <= 2 && strings.EqualFold(args[0], "list"):
		filter := ""
		if len(args) == 2 {
			filter = args[1]
		}
		reply, err = h.list(ctx, filter)
	default:
		reply = "Usage: auth add <user id> <group> | auth remove <user id> <group> | auth list [group]"
	}
	if err != nil {
		return err
	}
	return h.env.Bus().PublishOutbound(ctx, &bus.OutboundMessage{
		Adapter: msg.Adapter,
		RoomID:  msg.RoomID,
		UserID:  msg.UserID,
		TraceID: msg.TraceID,
		Content: reply,
	})
}

func (h *Handler) mutate(ctx context.Context, action string, requester *auth.User, userID, group string) (string, error) {
	target, err := h.env.Users().FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if target == nil {
		return fmt.Sprintf("No user was found with the ID %s.", userID), nil
	}

	svc := h.env.Auth()
	var res auth.Result
	if action == auth.ActionAdd {
		res, err = svc.AddUserToGroup(ctx, requester, target, group)
	} else {
		res, err = svc.RemoveUserFromGroup(ctx, requester, target, group)
	}
	if err != nil {
		return "", err
	}

	name := auth.NormalizeGroup(group)
	changed, ok := res.Changed()
	switch {
	case !ok && action == auth.ActionAdd:
		return "Only administrators can add users to groups.", nil
	case !ok:
		return "Only administrators can remove users from groups.", nil
	case action == auth.ActionAdd && changed:
		return fmt.Sprintf("%s was added to %s.", target.Name, name), nil
	case action == auth.ActionAdd:
		return fmt.Sprintf("%s was already in %s.", target.Name, name), nil
	case changed:
		return fmt.Sprintf("%s was removed from %s.", target.Name, name), nil
	default:
		return fmt.Sprintf("%s was not in %s.", target.Name, name), nil
	}
}

func (h *Handler) list(ctx context.Context, filter string) (string, error) {
	groups, err := h.env.Auth().GroupsWithUsers(ctx)
	if err != nil {
		return "", err
	}
	if filter != "" {
		name := auth.NormalizeGroup(filter)
		members, ok := groups[name]
		if !ok {
			return fmt.Sprintf("There is no authorization group named %s.", name), nil
		}
		groups = map[string][]*auth.User{name: members}
	}
	if len(groups) == 0 {
		return "There are no authorization groups yet.", nil
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, g := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		members := make([]string, 0, len(groups[g]))
		for _, u := range groups[g] {
			if u == nil {
				members = append(members, "(unknown)")
				continue
			}
			members = append(members, u.Name)
		}
		fmt.Fprintf(&b, "%s: %s", g, strings.Join(members, ", "))
	}
	return b.String(), nil
}

// addressed returns the message text with a leading mention or alias removed,
// and whether the message was meant for the robot.
func addressed(mentionName, alias string, msg *bus.InboundMessage) (string, bool) {
	text := strings.TrimSpace(msg.Content)
	if alias != "" && strings.HasPrefix(text, alias) {
		return strings.TrimSpace(text[len(alias):]), true
	}
	if mentionName != "" {
		lower := strings.ToLower(text)
		m := strings.ToLower(mentionName)
		for _, p := range []string{"@" + m, m} {
			if !strings.HasPrefix(lower, p) {
				continue
			}
			rest := text[len(p):]
			if rest == "" || strings.ContainsRune(":, ", rune(rest[0])) {
				return strings.TrimLeft(rest, ":, "), true
			}
		}
	}
	return text, msg.Private() || msg.Mentioned()
}

package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/KafClaw/robotd/internal/auth"
)

type fakeChecker map[string]map[string]bool

func (f fakeChecker) UserInGroup(_ context.Context, u *auth.User, group any) (bool, error) {
	g := auth.NormalizeGroup(group)
	if g == "broken" {
		return false, errors.New("store down")
	}
	return f[g][u.ID], nil
}

func restrict(m map[string][]string) Restrictions {
	return func(h string) []string { return m[h] }
}

func TestUnrestrictedHandlerAllowed(t *testing.T) {
	eng := NewGroupEngine(fakeChecker{}, restrict(nil))
	d, err := eng.Evaluate(context.Background(), Context{Handler: "help", UserID: "2", TraceID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allow || d.Reason != "unrestricted" || d.TraceID != "t1" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestNilRestrictionsAllow(t *testing.T) {
	eng := &GroupEngine{}
	d, err := eng.Evaluate(context.Background(), Context{Handler: "deploy"})
	if err != nil || !d.Allow {
		t.Fatalf("decision = %+v, %v", d, err)
	}
}

func TestMemberAllowed(t *testing.T) {
	eng := NewGroupEngine(
		fakeChecker{"ops": {"2": true}},
		restrict(map[string][]string{"deploy": {"admins", "Ops"}}),
	)
	d, err := eng.Evaluate(context.Background(), Context{Handler: "deploy", UserID: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allow || d.Reason != "member_of_ops" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestNonMemberDenied(t *testing.T) {
	eng := NewGroupEngine(
		fakeChecker{"ops": {"2": true}},
		restrict(map[string][]string{"deploy": {"ops"}}),
	)
	d, err := eng.Evaluate(context.Background(), Context{Handler: "deploy", UserID: "3"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allow {
		t.Fatal("non-member should be denied")
	}
	if d.Reason != "requires_group: ops" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestAnonymousSenderDenied(t *testing.T) {
	eng := NewGroupEngine(fakeChecker{}, restrict(map[string][]string{"deploy": {"ops"}}))
	d, _ := eng.Evaluate(context.Background(), Context{Handler: "deploy"})
	if d.Allow || d.Reason != "anonymous_sender" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestCheckerErrorPropagates(t *testing.T) {
	eng := NewGroupEngine(fakeChecker{}, restrict(map[string][]string{"deploy": {"broken"}}))
	if _, err := eng.Evaluate(context.Background(), Context{Handler: "deploy", UserID: "1"}); err == nil {
		t.Fatal("expected error")
	}
}

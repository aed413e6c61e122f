package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/KafClaw/robotd/internal/kv"
)

// User is a chat user known to a robot. ID is opaque and adapter-specific.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MentionName string `json:"mention_name,omitempty"`
}

// UserFinder resolves user IDs. A missing user is (nil, nil).
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// UserFinderFunc adapts a function to UserFinder.
type UserFinderFunc func(ctx context.Context, id string) (*User, error)

// FindByID implements UserFinder.
func (f UserFinderFunc) FindByID(ctx context.Context, id string) (*User, error) {
	return f(ctx, id)
}

// Directory persists users as hashes under "id:<id>" in its namespace.
type Directory struct {
	store kv.Store
}

// NewDirectory returns a directory over store (normally the "users" namespace).
func NewDirectory(store kv.Store) *Directory {
	return &Directory{store: store}
}

// Save creates or updates u.
func (d *Directory) Save(ctx context.Context, u *User) error {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("save user: empty id")
	}
	key := "id:" + u.ID
	name := u.Name
	if name == "" {
		name = u.ID
	}
	if err := d.store.HSet(ctx, key, "name", name); err != nil {
		return err
	}
	if u.MentionName != "" {
		if err := d.store.HSet(ctx, key, "mention_name", u.MentionName); err != nil {
			return err
		}
	}
	return nil
}

// FindByID implements UserFinder.
func (d *Directory) FindByID(ctx context.Context, id string) (*User, error) {
	fields, err := d.store.HGetAll(ctx, "id:"+id)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &User{ID: id, Name: fields["name"], MentionName: fields["mention_name"]}, nil
}

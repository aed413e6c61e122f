package auth

// Result is the outcome of a group mutation: either Unauthorized, or
// Changed(bool) when the requester was allowed to mutate.
type Result struct {
	authorized bool
	changed    bool
}

// Unauthorized is returned when the requesting user is not an admin.
var Unauthorized = Result{}

// Changed returns an authorized result reporting whether membership changed.
func Changed(changed bool) Result {
	return Result{authorized: true, changed: changed}
}

// IsUnauthorized reports whether the mutation was refused.
func (r Result) IsUnauthorized() bool { return !r.authorized }

// Changed reports whether membership changed. ok is false for Unauthorized.
func (r Result) Changed() (changed, ok bool) {
	return r.changed, r.authorized
}

func (r Result) String() string {
	switch {
	case !r.authorized:
		return "unauthorized"
	case r.changed:
		return "changed"
	default:
		return "unchanged"
	}
}

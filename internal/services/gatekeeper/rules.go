package gatekeeper

import "strings"

type RouteKind int

const (
	Public RouteKind = iota
	GuestOnly
	SessionRequired
	VerifiedRequired
)

func (k RouteKind) String() string {
	switch k {
	case GuestOnly:
		return "guest_only"
	case SessionRequired:
		return "session_required"
	case VerifiedRequired:
		return "verified_required"
	default:
		return "public"
	}
}

// Rule matches a path exactly, or as a prefix when Prefix is set. A prefix
// rule for "/payment" matches "/payment" and "/payment/..." but not "/payments".
type Rule struct {
	Path   string
	Prefix bool
	Kind   RouteKind
}

func (r Rule) Match(path string) bool {
	if path == r.Path {
		return true
	}
	if !r.Prefix {
		return false
	}
	base := strings.TrimSuffix(r.Path, "/")
	return strings.HasPrefix(path, base+"/")
}

// Rules is an ordered allow-list. The first matching rule wins and unmatched
// paths are Public.
type Rules []Rule

func (rs Rules) Kind(path string) RouteKind {
	for _, r := range rs {
		if r.Match(path) {
			return r.Kind
		}
	}
	return Public
}

// DefaultRules is the portal's route table.
func DefaultRules() Rules {
	return Rules{
		{Path: "/auth/sign-in", Kind: GuestOnly},
		{Path: "/auth/sign-up", Kind: GuestOnly},
		{Path: "/auth/google", Prefix: true, Kind: GuestOnly},
		{Path: "/auth/sign-out", Kind: SessionRequired},
		{Path: "/auth/session", Kind: SessionRequired},
		{Path: "/auth/metadata", Kind: SessionRequired},
		{Path: "/verify", Prefix: true, Kind: SessionRequired},
		{Path: "/confirmation/receipts", Prefix: true, Kind: VerifiedRequired},
		{Path: "/confirmation", Kind: SessionRequired},
		{Path: "/dashboard", Prefix: true, Kind: VerifiedRequired},
		{Path: "/payment", Prefix: true, Kind: VerifiedRequired},
	}
}

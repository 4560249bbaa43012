package gatekeeper

// State is where a user stands in the portal journey.
type State int

const (
	Unauthenticated State = iota
	Unverified
	Verified
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	default:
		return "unauthenticated"
	}
}

type Event int

const (
	SignedIn Event = iota
	SignedUp
	IdentityVerified
	SignedOut
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedUp:
		return "signed_up"
	case IdentityVerified:
		return "verified"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Next is the journey transition function. Events that make no sense in the
// current state leave it unchanged.
func Next(s State, e Event) State {
	switch e {
	case SignedOut:
		return Unauthenticated
	case SignedIn, SignedUp:
		if s == Unauthenticated {
			return Unverified
		}
		return s
	case IdentityVerified:
		if s == Unverified {
			return Verified
		}
		return s
	}
	return s
}

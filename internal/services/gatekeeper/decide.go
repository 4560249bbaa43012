package gatekeeper

const (
	HomePath      = "/dashboard"
	SignInPath    = "/auth/sign-in"
	VerifyPath    = "/verify"
	SignedOutPath = "/"
)

// Decision is either Allow or a redirect target.
type Decision struct {
	Allow      bool
	RedirectTo string
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to string) Decision { return Decision{RedirectTo: to} }

// Decide is pure: the same state and route kind always give the same decision.
func Decide(s State, k RouteKind) Decision {
	switch k {
	case GuestOnly:
		if s != Unauthenticated {
			return redirect(HomePath)
		}
	case SessionRequired:
		if s == Unauthenticated {
			return redirect(SignInPath)
		}
	case VerifiedRequired:
		switch s {
		case Unauthenticated:
			return redirect(SignInPath)
		case Unverified:
			return redirect(VerifyPath)
		}
	}
	return allow()
}

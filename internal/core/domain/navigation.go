package domain

// RouteGroup classifies the screen the user is currently on. The presentation
// layer maps its own routing representation onto these two groups.
type RouteGroup int

const (
	// RoutePublic covers the unauthenticated screens (login, register).
	RoutePublic RouteGroup = iota
	// RouteProtected covers everything behind sign-in.
	RouteProtected
)

// Decision is the navigation guard's instruction to the presentation layer.
type Decision int

const (
	// DecisionStay means the current screen is fine.
	DecisionStay Decision = iota
	// DecisionShowLoading blocks rendering until validity is determined.
	// No redirect may happen in this state.
	DecisionShowLoading
	// DecisionRedirectSignIn sends the user to the sign-in entry point.
	DecisionRedirectSignIn
	// DecisionRedirectHome sends a signed-in user away from the public group.
	DecisionRedirectHome
)

func (d Decision) String() string {
	switch d {
	case DecisionShowLoading:
		return "show_loading"
	case DecisionRedirectSignIn:
		return "redirect_sign_in"
	case DecisionRedirectHome:
		return "redirect_home"
	default:
		return "stay"
	}
}

// DecideRoute is the navigation guard: a pure function of session validity and
// the active route group, re-evaluated on every route change and every session
// state change. It never redirects while validity is undetermined, and it is
// idempotent: once a redirect target is reached, re-evaluation yields Stay.
func DecideRoute(v Validity, group RouteGroup) Decision {
	if v == ValidityUnverified {
		return DecisionShowLoading
	}
	if v == ValidityInvalid && group == RouteProtected {
		return DecisionRedirectSignIn
	}
	if v == ValidityValid && group == RoutePublic {
		return DecisionRedirectHome
	}
	return DecisionStay
}

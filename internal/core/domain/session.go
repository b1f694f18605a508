package domain

// Validity is the client's belief about whether its stored token is currently
// accepted by the authority. It is always re-derived at runtime, never persisted.
type Validity int

const (
	// ValidityUnverified means no check has completed yet.
	ValidityUnverified Validity = iota
	// ValidityValid means the token was accepted as of the last check.
	ValidityValid
	// ValidityInvalid means there is no token, or the authority rejected it.
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unverified"
	}
}

// Session pairs the stored token with its derived validity.
// Invariant: Validity == ValidityValid implies Token != "".
type Session struct {
	Token    string
	Validity Validity
}

// Authenticated reports whether the session can be used for protected calls.
func (s Session) Authenticated() bool {
	return s.Validity == ValidityValid && s.Token != ""
}

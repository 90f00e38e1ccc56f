package identity

// Outcome discriminates the result of a session verification.
type Outcome int

const (
	// OutcomeAuthenticated carries a non-nil User.
	OutcomeAuthenticated Outcome = iota + 1
	// OutcomeAnonymous means the provider reported no active session.
	OutcomeAnonymous
	// OutcomeFailed carries the provider or profile error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Verification is the result of GetCurrentUser. Exactly one of the outcomes applies;
// the zero value is treated as a failure by consumers.
type Verification struct {
	Outcome Outcome
	User    *User
	Err     error
}

// Authenticated builds a successful verification. A nil user degrades to Anonymous.
func Authenticated(user *User) Verification {
	if user == nil {
		return Anonymous()
	}
	return Verification{Outcome: OutcomeAuthenticated, User: user}
}

// Anonymous builds a verification for a visitor without a session.
func Anonymous() Verification {
	return Verification{Outcome: OutcomeAnonymous}
}

// Failed builds a verification for a provider or profile failure.
func Failed(err error) Verification {
	if err == nil {
		err = ErrProviderUnavailable
	}
	return Verification{Outcome: OutcomeFailed, Err: err}
}

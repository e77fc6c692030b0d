// Package trust defines the ordered trust levels a validated rdataset can
// carry, and the small set of predicates and promotions the rest of the
// validator uses to reason about them.
package trust

// Level is a total order over how much a resolver should trust a given
// rdataset. Validation either raises a Level to Secure, or leaves it
// unchanged at Answer (cacheable as insecure).
type Level int

const (
	None Level = iota
	Pending
	Additional
	Glue
	Answer
	AuthAuthority
	AuthAnswer
	Secure
	Ultimate
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Pending:
		return "pending"
	case Additional:
		return "additional"
	case Glue:
		return "glue"
	case Answer:
		return "answer"
	case AuthAuthority:
		return "authauthority"
	case AuthAnswer:
		return "authanswer"
	case Secure:
		return "secure"
	case Ultimate:
		return "ultimate"
	default:
		return "unknown"
	}
}

// IsPending reports whether l is the pending trust level.
func (l Level) IsPending() bool {
	return l == Pending
}

// IsAnswer reports whether l is one of the answer trust levels.
func (l Level) IsAnswer() bool {
	return l == Answer || l == AuthAnswer
}

// IsSecure reports whether l has been fully validated.
func (l Level) IsSecure() bool {
	return l >= Secure
}

// Set is a pair of rdataset-like trust levels: the data itself, and its
// covering signature set. The validator only ever raises these, never
// lowers them.
type Set struct {
	Data      Level
	Signature Level
}

// MarkSecure raises both the data and signature trust levels of s to Secure.
// It reports whether a change was actually made, so callers can detect an
// attempt to "re-secure" an already secure set (a bug, not an error).
func (s *Set) MarkSecure() (raised bool) {
	if s.Data < Secure {
		s.Data = Secure
		raised = true
	}
	if s.Signature < Secure {
		s.Signature = Secure
		raised = true
	}
	return raised
}

// MarkAnswer leaves trust at Answer (or AuthAnswer, matching whichever the
// set already carries) unless mustBeSecure is set, in which case it reports
// ErrMustBeSecure instead of ever downgrading or settling on an insecure
// verdict for a name policy has flagged as requiring a secure answer.
func (s *Set) MarkAnswer(mustBeSecure bool) error {
	if mustBeSecure {
		return ErrMustBeSecure
	}
	if s.Data < Answer {
		s.Data = Answer
	}
	if s.Signature < Answer {
		s.Signature = Answer
	}
	return nil
}

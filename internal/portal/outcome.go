// Package portal fetches result sheets from the exam results portal and classifies the response.
package portal

import "fmt"

// Kind classifies a single fetch attempt.
type Kind int

// Fetch outcome kinds.
const (
	KindNotFound Kind = iota
	KindFound
	KindTransient
)

// String implements fmt.Stringer; values double as metric labels.
func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is a successfully fetched sheet with the extracted student name.
type Result struct {
	USN    string
	Name   string
	Branch string
	Year   string
	PDF    []byte
}

// Outcome is the tagged result of Fetch. Result is only set for KindFound.
type Outcome struct {
	Kind     Kind
	Result   Result
	Attempts int
	// Reason is a short human readable explanation for non-found outcomes.
	Reason string
}

// Found reports whether the outcome carries a usable Result.
func (o Outcome) Found() bool {
	return o.Kind == KindFound
}

func notFound(reason string, attempts int) Outcome {
	return Outcome{Kind: KindNotFound, Reason: reason, Attempts: attempts}
}

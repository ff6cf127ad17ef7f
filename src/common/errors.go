package common

import "fmt"

// ErrType identifies a class of cache error.
type ErrType uint32

const (
	// NotFound means an address or key is absent from every reachable store.
	NotFound ErrType = iota
	// AlreadyExists means a write targeted a key that is already committed.
	AlreadyExists
	// ConsistencyViolation means two writes to the same immutable key
	// disagree. It signals a broken determinism assumption and must never be
	// silently swallowed.
	ConsistencyViolation
	// Timeout means a blocking Get exceeded its deadline.
	Timeout
	// DeadLetter means a work item exhausted its attempt ceiling.
	DeadLetter
)

// Err is a typed error tagged with the store namespace and key it relates to.
type Err struct {
	dataType string
	errType  ErrType
	key      string
}

// NewErr ...
func NewErr(dataType string, errType ErrType, key string) Err {
	return Err{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e Err) Error() string {
	m := ""
	switch e.errType {
	case NotFound:
		m = "Not Found"
	case AlreadyExists:
		m = "Already Exists"
	case ConsistencyViolation:
		m = "Consistency Violation"
	case Timeout:
		m = "Timeout"
	case DeadLetter:
		m = "Dead Letter"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// Is checks that an error is of type Err and that its code matches the
// provided ErrType code.
func Is(err error, t ErrType) bool {
	e, ok := err.(Err)
	return ok && e.errType == t
}

package mq

import "errors"

// Result is the stable result code reported to publishers and returned by
// ResultOf. The numeric values are shared with existing deployments and must
// not be reordered.
type Result int32

const (
	// Success means the operation completed.
	Success Result = iota

	// NullPointer means a required handle was nil.
	NullPointer

	// Deinitialized means the broker has not been started.
	Deinitialized

	// OutOfMemory means a fixed-capacity table is full.
	OutOfMemory

	// Exists means the object is already registered.
	Exists

	// NotFound means the object is not registered.
	NotFound

	// OutOfBounds means a size or depth limit was exceeded.
	OutOfBounds

	// LockTimeout means the broker lock could not be acquired in time.
	LockTimeout
)

// Unknown is reported by ResultOf for errors outside the taxonomy.
const Unknown Result = -1

// String returns a human-readable result name.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NullPointer:
		return "null pointer"
	case Deinitialized:
		return "deinitialized"
	case OutOfMemory:
		return "out of memory"
	case Exists:
		return "exists"
	case NotFound:
		return "not found"
	case OutOfBounds:
		return "out of bounds"
	case LockTimeout:
		return "lock timeout"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for r, or nil for Success.
func (r Result) Err() error {
	switch r {
	case Success:
		return nil
	case NullPointer:
		return ErrNullPointer
	case Deinitialized:
		return ErrDeinitialized
	case OutOfMemory:
		return ErrOutOfMemory
	case Exists:
		return ErrExists
	case NotFound:
		return ErrNotFound
	case OutOfBounds:
		return ErrOutOfBounds
	case LockTimeout:
		return ErrLockTimeout
	default:
		return errUnknown
	}
}

// Sentinel errors, one per failing Result.
var (
	// ErrNullPointer is returned when a nil handle is passed.
	ErrNullPointer = errors.New("mq: null pointer")

	// ErrDeinitialized is returned by operations on a broker that was never started.
	ErrDeinitialized = errors.New("mq: broker not started")

	// ErrOutOfMemory is returned when the vocabulary or the topic table is full.
	ErrOutOfMemory = errors.New("mq: out of memory")

	// ErrExists is returned when a topic, subscriber or bridge is already registered.
	ErrExists = errors.New("mq: already exists")

	// ErrNotFound is returned when a topic, subscriber or bridge is not registered.
	ErrNotFound = errors.New("mq: not found")

	// ErrOutOfBounds is returned when a name, depth or capacity limit is exceeded.
	ErrOutOfBounds = errors.New("mq: out of bounds")

	// ErrLockTimeout is returned when the broker lock was not acquired in time.
	ErrLockTimeout = errors.New("mq: lock timeout")

	errUnknown = errors.New("mq: unknown result")
)

var sentinels = [...]struct {
	err    error
	result Result
}{
	{ErrNullPointer, NullPointer},
	{ErrDeinitialized, Deinitialized},
	{ErrOutOfMemory, OutOfMemory},
	{ErrExists, Exists},
	{ErrNotFound, NotFound},
	{ErrOutOfBounds, OutOfBounds},
	{ErrLockTimeout, LockTimeout},
}

// ResultOf maps an error chain back to its Result.
// A nil error is Success; errors outside the taxonomy are Unknown.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.result
		}
	}
	return Unknown
}

// OpError records the operation and topic that failed.
type OpError struct {
	// Op is the failing operation, e.g. "subscribe".
	Op string

	// Topic is the topic name the operation was applied to.
	Topic string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Topic == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Topic + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap returns err annotated with op and topic, or nil if err is nil.
func Wrap(op, topic string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Topic: topic, Err: err}
}

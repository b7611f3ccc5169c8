// Package errs defines the stable error-kind vocabulary shared across the
// storage core and a small typed wrapper so callers can use
// errors.Is/errors.As instead of matching on error strings.
package errs

import "fmt"

// Kind is a stable, enumerated error category. Kinds never change meaning
// across releases; new kinds may be added.
type Kind string

const (
	Timeout            Kind = "timeout"
	NotFound           Kind = "not_found"
	InvalidArgument    Kind = "invalid_argument"
	PermissionDenied   Kind = "permission_denied"
	StaleLockFile      Kind = "stale_lock_file"
	DaemonStartTimeout Kind = "daemon_start_timeout"
	BackendUnavailable Kind = "backend_unavailable"
	SchemaMismatch     Kind = "schema_mismatch"
	IntegrityError     Kind = "integrity_error"
	Cancelled          Kind = "cancelled"
	SecurityError      Kind = "security_error"
	ExecutionError     Kind = "execution_error"
)

// Typed pairs a stable Kind with the underlying error, so callers that
// only care about the category can switch on Kind while errors.Unwrap
// still reaches the original cause.
type Typed struct {
	Kind Kind
	Err  error
}

func (t *Typed) Error() string {
	if t.Err == nil {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s: %v", t.Kind, t.Err)
}

func (t *Typed) Unwrap() error { return t.Err }

// New wraps err with a stable Kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Typed{Kind: kind, Err: err}
}

// Newf builds a Typed error directly from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Typed{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the stable Kind from err, defaulting to ExecutionError
// when err does not carry one.
func KindOf(err error) Kind {
	var t *Typed
	if err == nil {
		return ""
	}
	if asTyped(err, &t) {
		return t.Kind
	}
	return ExecutionError
}

func asTyped(err error, target **Typed) bool {
	for err != nil {
		if t, ok := err.(*Typed); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

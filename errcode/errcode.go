package errcode

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Transport layer.
	NotReady       Code = "not_ready"       // shutdown fence is up
	TransportError Code = "transport_error" // bus transaction failed

	// Initialization protocol.
	ModelLocked       Code = "model_locked"        // unlock did not take effect
	ModelVerifyFailed Code = "model_verify_failed" // post-load SOC outside window
	InitFailed        Code = "init_failed"

	// Identification.
	VersionMismatch Code = "version_mismatch"

	// Configuration.
	InvalidConfig Code = "invalid_config"

	Error Code = "error" // generic fallback
)

// E keeps context alongside a code: the operation, the register the
// transaction touched (when there was one), and the underlying cause.
type E struct {
	C   Code
	Op  string
	Reg uint8
	Err error
}

func (e *E) Error() string {
	s := string(e.C) + ": " + e.Op
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, SomeCode) match through the wrapper.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

package errors

// ErrorCode names a failure class such as "sensor_read_failed". Codes are
// plain strings so they survive logging and can be matched with HasCode.
type ErrorCode string

// Coder is implemented by anything that carries an ErrorCode.
type Coder interface {
	Code() ErrorCode
}

// Error is a coded error with an optional message override, attached data
// (a register, a path, a pin) and the wrapped cause.
type Error interface {
	error
	Coder
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors. Callers take one per function via New() and
// wrap the low-level cause with the code of the failing component.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

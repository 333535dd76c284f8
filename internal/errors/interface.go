package errors

// ErrorCode identifies a class of failure. Codes are stable strings, so
// they are safe to log and to match on across package boundaries.
type ErrorCode string

func (c ErrorCode) String() string { return string(c) }

// Error is a coded error. Data is optional structured context and is
// rendered into the message.
type Error interface {
	error
	Code() ErrorCode
	Data() any
	Unwrap() error
}

// Factory builds coded errors. Every package obtains one with New.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

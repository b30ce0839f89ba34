package decode

import "fmt"

// ErrorKind classifies decoder failures.
type ErrorKind int

const (
	UnsupportedFormat ErrorKind = iota
	CorruptData
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported format"
	case CorruptData:
		return "corrupt data"
	default:
		return "unknown"
	}
}

// DecodeError reports bytes the codec could not turn into samples.
type DecodeError struct {
	Kind   ErrorKind
	Codec  string
	Offset int64
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s", e.Kind)
	if e.Codec != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Codec)
	}
	if e.Offset > 0 {
		msg = fmt.Sprintf("%s at byte %d", msg, e.Offset)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies processing failures. Every error leaving the
// engine carries exactly one kind; callers branch on it with KindOf.
type ErrorKind int

const (
	// KindDecode: input bytes are not a valid instance of the detected format.
	KindDecode ErrorKind = iota
	// KindEncode: producing the output bitstream failed.
	KindEncode
	// KindQuantize: the lossy quantization step failed.
	KindQuantize
	// KindOptimize: the lossless optimization step failed.
	KindOptimize
	// KindUnsupportedFormat: no processor is registered for the format.
	KindUnsupportedFormat
	// KindUnsupportedOperation: a processor exists but lacks the capability.
	KindUnsupportedOperation
	// KindExternalToolMissing: the external encoder binary is absent.
	KindExternalToolMissing
	// KindExternalToolFailed: the external encoder ran and exited non-zero.
	KindExternalToolFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindQuantize:
		return "quantize"
	case KindOptimize:
		return "optimize"
	case KindUnsupportedFormat:
		return "unsupported format"
	case KindUnsupportedOperation:
		return "unsupported operation"
	case KindExternalToolMissing:
		return "external tool missing"
	case KindExternalToolFailed:
		return "external tool failed"
	default:
		return "unknown"
	}
}

// ProcessingError is the terminal failure of a single operation. It is
// always returned, never logged-and-swallowed.
type ProcessingError struct {
	Kind   ErrorKind
	Format Format // format being processed, FmtUnknown when not applicable
	Detail string // human-readable context (e.g. encoder diagnostics)
	Err    error  // wrapped cause, may be nil
}

func (e *ProcessingError) Error() string {
	msg := e.Kind.String()
	if e.Format != "" && e.Format != FmtUnknown {
		msg += " (" + string(e.Format) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Errorf builds a ProcessingError with a formatted detail message.
func Errorf(kind ErrorKind, format Format, fmtStr string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Format: format, Detail: fmt.Sprintf(fmtStr, args...)}
}

// WrapError builds a ProcessingError around a cause.
func WrapError(kind ErrorKind, format Format, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Format: format, Err: err}
}

// KindOf extracts the ErrorKind from err. The second return is false when
// err is not a ProcessingError.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a ProcessingError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

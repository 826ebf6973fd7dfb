package viewdb

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the errors surfaced by this package's public operations.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindCorrupt
	KindBusy
	KindIndexBusy
	KindConflict
	KindIOError
	KindTransactionRequired
	KindInvalidParameter
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindCorrupt:
		return "Corrupt"
	case KindBusy:
		return "Busy"
	case KindIndexBusy:
		return "IndexBusy"
	case KindConflict:
		return "Conflict"
	case KindIOError:
		return "IOError"
	case KindTransactionRequired:
		return "TransactionRequired"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "None"
	}
}

// Error is the one error type returned by this package's public API. Every
// error carries a Kind from the taxonomy above so callers can branch on
// errors.As without depending on message text.
type Error struct {
	Kind ErrorKind
	Op   string // the operation that failed, e.g. "View.Open", "Indexer.End"
	View string // view name, if applicable
	Key  []byte // offending key, if applicable
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var msg string
	if e.Msg != "" {
		msg = e.Msg
	} else {
		msg = e.Kind.String()
	}
	if e.View != "" {
		msg = e.View + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Key != nil {
		msg = fmt.Sprintf("%s (key=%s)", msg, hexstr(e.Key))
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

func newErr(kind ErrorKind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind ErrorKind, op string, err error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func corruptErr(op string, key []byte, err error, format string, args ...any) error {
	return &Error{Kind: KindCorrupt, Op: op, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, KindNone otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// DataError is a truncated-hex-dump error used by the collatable codec to
// report decode failures with a bounded data preview.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		}
		return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
	}
	p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
	}
	return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
}

// asCorrupt wraps a low-level DataError (or any decode error) as a KindCorrupt
// *Error for the given operation, matching the §7 rule that decode errors in
// one row are reported as Corrupt and terminate only that cursor.
func asCorrupt(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapErr(KindCorrupt, op, err, "corrupt data")
}

// Package errs defines the error kinds that cross every tockloader
// component boundary: the TBF codec, the layout engine, the bootloader
// transport, and the TicKV codec all return *errs.Error rather than
// raw errors, so the CLI can map a failure to one of the stable exit
// codes in the external interface without type-switching on strings.
package errs

import (
	"fmt"
	"runtime"
)

// Kind identifies the category of a tockloader error, independent of
// the specific message. The CLI maps Kind to a process exit code.
type Kind int

const (
	// KindUnknown is never constructed directly; it signals a bug if
	// observed.
	KindUnknown Kind = iota
	KindUsage
	KindTransport
	KindProtocol
	KindInvalidHeader
	KindInvalidTlv
	KindInvalidFooter
	KindUnsupportedArch
	KindBoardMismatch
	KindPlacementImpossible
	KindFlashVerifyFailed
	KindKeyNotFound
	KindUnsupportedCredential
	KindCredentialVerifyFailed
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "UsageError"
	case KindTransport:
		return "TransportError"
	case KindProtocol:
		return "ProtocolError"
	case KindInvalidHeader:
		return "InvalidHeader"
	case KindInvalidTlv:
		return "InvalidTlv"
	case KindInvalidFooter:
		return "InvalidFooter"
	case KindUnsupportedArch:
		return "UnsupportedArch"
	case KindBoardMismatch:
		return "BoardMismatch"
	case KindPlacementImpossible:
		return "PlacementImpossible"
	case KindFlashVerifyFailed:
		return "FlashVerifyFailed"
	case KindKeyNotFound:
		return "KeyNotFound"
	case KindUnsupportedCredential:
		return "UnsupportedCredential"
	case KindCredentialVerifyFailed:
		return "CredentialVerifyFailed"
	default:
		return "UnknownError"
	}
}

// ExitCode maps a Kind onto the stable exit-code scheme from the
// external-interface spec: 0 success, 1 generic, 2 usage, 3
// transport, 4 placement, 5 verify.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 2
	case KindTransport, KindProtocol, KindBoardMismatch:
		return 3
	case KindPlacementImpossible, KindUnsupportedArch:
		return 4
	case KindFlashVerifyFailed, KindCredentialVerifyFailed:
		return 5
	default:
		return 1
	}
}

// Error is the error type returned across every tockloader package
// boundary. It carries a Kind for exit-code mapping, an optional
// wrapped parent error, and a captured stack trace (printed by the CLI
// at -v verbosity),
// mirroring apache-mynewt-newt's util.NewtError.
type Error struct {
	Kind       Kind
	Text       string
	Parent     error
	StackTrace []byte

	// Address and TlvID are set by callers that can name the flash
	// range or TLV at fault, per the "terminal errors include the
	// address range or TLV ID at fault" policy.
	Address int64
	HasAddr bool
	TlvID   int
	HasTlv  bool
}

func (e *Error) Error() string {
	if e.HasAddr && e.HasTlv {
		return fmt.Sprintf("%s: %s (addr=0x%x tlv=%d)", e.Kind, e.Text, e.Address, e.TlvID)
	}
	if e.HasAddr {
		return fmt.Sprintf("%s: %s (addr=0x%x)", e.Kind, e.Text, e.Address)
	}
	if e.HasTlv {
		return fmt.Sprintf("%s: %s (tlv=%d)", e.Kind, e.Text, e.TlvID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func captureStack() []byte {
	buf := make([]byte, 65536)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// New constructs an Error of the given kind with a plain message.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:       kind,
		Text:       msg,
		StackTrace: captureStack(),
	}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind and message to an existing error, preserving it
// as the Parent so the original cause survives for verbose error output.
func Wrap(kind Kind, parent error, format string, args ...interface{}) *Error {
	e := Newf(kind, format, args...)
	e.Parent = parent
	return e
}

// WithAddr returns a copy of e annotated with the flash address at
// fault, per the "terminal errors include the address range ... at
// fault" error-handling policy.
func (e *Error) WithAddr(addr int64) *Error {
	e2 := *e
	e2.Address = addr
	e2.HasAddr = true
	return &e2
}

// WithTlv returns a copy of e annotated with the TLV ID at fault.
func (e *Error) WithTlv(id int) *Error {
	e2 := *e
	e2.TlvID = id
	e2.HasTlv = true
	return &e2
}

// Of reports whether err is a *Error of the given Kind, unwrapping
// through Parent chains the way ChildNewtError does in the teacher.
func Of(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Parent
			continue
		}
		return false
	}
	return false
}

package hdf5

import (
	"errors"
	"fmt"

	"github.com/scigolib/hdf5/internal/utils"
)

// Kind classifies an Error into one of the categories a caller can switch on
// without parsing the message text.
type Kind int

const (
	// KindUnknown is used when a cause does not match any recognized sentinel.
	KindUnknown Kind = iota
	KindIO
	KindNotHDF5
	KindUnsupportedVersion
	KindCorruptHeader
	KindCorruptMessage
	KindCorruptBTree
	KindChecksumMismatch
	KindUnsupportedFilter
	KindUnsupportedLayout
	KindUnsupportedDatatype
	KindClosed
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindNotHDF5:
		return "not_hdf5"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindCorruptHeader:
		return "corrupt_header"
	case KindCorruptMessage:
		return "corrupt_message"
	case KindCorruptBTree:
		return "corrupt_btree"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindUnsupportedFilter:
		return "unsupported_filter"
	case KindUnsupportedLayout:
		return "unsupported_layout"
	case KindUnsupportedDatatype:
		return "unsupported_datatype"
	case KindClosed:
		return "closed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type returned across the public API. It always
// wraps the triggering cause with %w so errors.Is/errors.As/errors.Unwrap
// all see through to the underlying sentinel or I/O error.
type Error struct {
	Kind    Kind
	Address uint64 // byte offset where the failure was detected, if known
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("hdf5: %s at 0x%x: %v", e.Kind, e.Address, e.Cause)
	}
	return fmt.Sprintf("hdf5: %s at 0x%x: %s: %v", e.Kind, e.Address, e.Detail, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func errIo(address uint64, cause error) error {
	return &Error{Kind: KindIO, Address: address, Cause: cause}
}

func errNotHDF5(cause error) error {
	return &Error{Kind: KindNotHDF5, Cause: cause}
}

func errUnsupportedVersion(what string, version int, cause error) error {
	return &Error{Kind: KindUnsupportedVersion, Detail: fmt.Sprintf("%s version %d", what, version), Cause: cause}
}

func errCorruptHeader(address uint64, detail string, cause error) error {
	return &Error{Kind: KindCorruptHeader, Address: address, Detail: detail, Cause: cause}
}

func errClosed() error {
	return &Error{Kind: KindClosed, Cause: utils.ErrClosed}
}

func errNotFound(path string) error {
	return &Error{Kind: KindNotFound, Detail: path, Cause: utils.ErrNotFound}
}

// classify maps a cause (typically from internal/core or internal/utils)
// to a public Kind by matching against the sentinel causes those packages
// wrap with utils.WrapError. The address is attached when the caller knows
// where the failure occurred; callers without an address pass 0.
func classify(address uint64, cause error) error {
	if cause == nil {
		return nil
	}

	switch {
	case errors.Is(cause, utils.ErrNotHDF5):
		return errNotHDF5(cause)
	case errors.Is(cause, utils.ErrClosed):
		return &Error{Kind: KindClosed, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrNotFound):
		return &Error{Kind: KindNotFound, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrChecksumMismatch):
		return &Error{Kind: KindChecksumMismatch, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrUnsupportedFilter):
		return &Error{Kind: KindUnsupportedFilter, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrUnsupportedVersion):
		return &Error{Kind: KindUnsupportedVersion, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrUnsupportedLayout):
		return &Error{Kind: KindUnsupportedLayout, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrUnsupportedDatatype):
		return &Error{Kind: KindUnsupportedDatatype, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrCorruptHeader):
		return &Error{Kind: KindCorruptHeader, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrCorruptMessage):
		return &Error{Kind: KindCorruptMessage, Address: address, Cause: cause}
	case errors.Is(cause, utils.ErrCorruptBTree):
		return &Error{Kind: KindCorruptBTree, Address: address, Cause: cause}
	default:
		return errIo(address, cause)
	}
}

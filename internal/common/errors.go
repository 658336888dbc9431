// Package common defines shared constants and sentinel errors used across
// the storage server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrInvalidArgument reports caller-supplied data that failed validation
	// (extension, size, access level, bucket name, identifiers).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden reports a missing permission. It is also returned when the
	// file does not exist and the caller holds no permission row for it.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound reports an absent resource where existence hiding does not apply.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a storage path collision at creation time.
	ErrConflict = errors.New("conflict")

	// ErrStorage reports a failed blob store call.
	ErrStorage = errors.New("storage error")

	// ErrInternal reports a failed metadata store call or a detected
	// consistency violation.
	ErrInternal = errors.New("internal error")

	// ErrInvalidToken reports a malformed, expired or wrongly signed bearer token.
	ErrInvalidToken = errors.New("invalid token")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrForbidden,
	ErrNotFound,
	ErrConflict,
	ErrStorage,
	ErrInternal,
}

// KindOf returns the taxonomy sentinel err belongs to. Errors outside the
// taxonomy are reported as ErrInternal; nil maps to nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

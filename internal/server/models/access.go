package models

import (
	"fmt"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
)

// AccessLevel is the capability a permission row grants. Levels are not
// ordered: each operation names the exact levels it accepts.
type AccessLevel string

const (
	AccessNone  AccessLevel = ""
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessOwner AccessLevel = "owner"
)

// ParseAccessLevel accepts exactly "read", "write" or "owner".
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch l := AccessLevel(s); l {
	case AccessRead, AccessWrite, AccessOwner:
		return l, nil
	default:
		return AccessNone, fmt.Errorf("access level %q: %w", s, common.ErrInvalidArgument)
	}
}

// ParseGrantableLevel accepts only the levels GrantAccess may hand out.
// Ownership is not transferable.
func ParseGrantableLevel(s string) (AccessLevel, error) {
	l, err := ParseAccessLevel(s)
	if err != nil {
		return AccessNone, err
	}
	if !l.Grantable() {
		return AccessNone, fmt.Errorf("access level %q cannot be granted: %w", s, common.ErrInvalidArgument)
	}
	return l, nil
}

func (l AccessLevel) String() string { return string(l) }

// Valid reports whether l is one of the three stored levels.
func (l AccessLevel) Valid() bool {
	return l == AccessRead || l == AccessWrite || l == AccessOwner
}

// Grantable reports whether l may be assigned through a grant.
func (l AccessLevel) Grantable() bool {
	return l == AccessRead || l == AccessWrite
}

// In reports whether l is one of the accepted levels.
func (l AccessLevel) In(accepted ...AccessLevel) bool {
	for _, a := range accepted {
		if l == a {
			return true
		}
	}
	return false
}

// Package store resolves and manages the on-disk locations of record stores.
package store

import (
	"errors"
	"strings"
)

// Store ID validation errors.
var (
	// ErrInvalidStoreID indicates the store ID format is invalid.
	ErrInvalidStoreID = errors.New("invalid store ID: must be lowercase alphanumeric with hyphens, 1-4 path segments")

	// ErrReservedStoreID indicates the store ID is reserved and cannot be created.
	ErrReservedStoreID = errors.New("reserved store ID: cannot create stores with reserved IDs")
)

const (
	maxSegments   = 4
	maxSegmentLen = 64
)

// DefaultStoreID is used when no store is named.
const DefaultStoreID = "default"

var reservedStoreIDs = map[string]bool{
	DefaultStoreID: true,
	"_system":      true,
}

// ValidateStoreID checks the format <segment>[/<segment>]{0,3} where each
// segment is 1-64 characters of [a-z0-9-] with no leading, trailing or
// doubled hyphen. Reserved IDs pass so they can be targeted.
func ValidateStoreID(id string) error {
	if reservedStoreIDs[id] {
		return nil
	}
	segments := strings.Split(id, "/")
	if id == "" || len(segments) > maxSegments {
		return ErrInvalidStoreID
	}
	for _, seg := range segments {
		if !validSegment(seg) {
			return ErrInvalidStoreID
		}
	}
	return nil
}

func validSegment(seg string) bool {
	if seg == "" || len(seg) > maxSegmentLen {
		return false
	}
	if seg[0] == '-' || seg[len(seg)-1] == '-' || strings.Contains(seg, "--") {
		return false
	}
	for _, c := range seg {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

// IsReservedStoreID returns true if the store ID is reserved.
func IsReservedStoreID(id string) bool {
	return reservedStoreIDs[id]
}

// ValidateStoreIDForCreation rejects reserved IDs on top of ValidateStoreID.
func ValidateStoreIDForCreation(id string) error {
	if err := ValidateStoreID(id); err != nil {
		return err
	}
	if IsReservedStoreID(id) {
		return ErrReservedStoreID
	}
	return nil
}

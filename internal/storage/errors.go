package storage

import (
	"fmt"
	"strings"
)

// Tier names used in errors and logs.
const (
	TierCache   = "cache"
	TierDurable = "durable"
)

// TierWriteError reports a dual write where one or both tiers failed.
// Both writes are always attempted, so each field reflects an actual
// attempt. The caller must not delete the source file while either
// field is set.
type TierWriteError struct {
	// CacheErr is the hot cache write failure, nil if that write
	// succeeded.
	CacheErr error

	// DurableErr is the durable store write failure, nil if that write
	// succeeded.
	DurableErr error
}

func (e *TierWriteError) Error() string {
	var parts []string
	if e.CacheErr != nil {
		parts = append(parts, fmt.Sprintf("%s: %v", TierCache, e.CacheErr))
	}
	if e.DurableErr != nil {
		parts = append(parts, fmt.Sprintf("%s: %v", TierDurable, e.DurableErr))
	}
	if len(parts) == 0 {
		return "tier write failed"
	}
	return "tier write failed: " + strings.Join(parts, "; ")
}

func (e *TierWriteError) Unwrap() []error {
	var errs []error
	if e.CacheErr != nil {
		errs = append(errs, e.CacheErr)
	}
	if e.DurableErr != nil {
		errs = append(errs, e.DurableErr)
	}
	return errs
}

// FailedTiers returns the names of the tiers whose write failed.
func (e *TierWriteError) FailedTiers() []string {
	var tiers []string
	if e.CacheErr != nil {
		tiers = append(tiers, TierCache)
	}
	if e.DurableErr != nil {
		tiers = append(tiers, TierDurable)
	}
	return tiers
}

// Code returns the machine-readable error code.
func (e *TierWriteError) Code() string { return "tier_write_failed" }

// TierUnavailableError reports a connection-level failure against a
// tier. Fatal at startup; reported per-operation when it happens
// mid-run.
type TierUnavailableError struct {
	Tier string
	Err  error
}

func (e *TierUnavailableError) Error() string {
	return fmt.Sprintf("%s tier unavailable: %v", e.Tier, e.Err)
}

func (e *TierUnavailableError) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *TierUnavailableError) Code() string { return "tier_unavailable" }

// QueryError reports a storage read failure with enough context to
// distinguish the tier and operation. Never used for empty results:
// empty data is a successful query.
type QueryError struct {
	Tier string
	Op   string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Tier, e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *QueryError) Code() string { return "query_failed" }

// InvalidPageTokenError reports a page token that could not be decoded
// or does not belong to the request it was presented with. Surfaced to
// the caller, never silently reset to the first page.
type InvalidPageTokenError struct {
	Reason string
}

func (e *InvalidPageTokenError) Error() string {
	return fmt.Sprintf("invalid page token: %s", e.Reason)
}

// Code returns the machine-readable error code.
func (e *InvalidPageTokenError) Code() string { return "invalid_page_token" }

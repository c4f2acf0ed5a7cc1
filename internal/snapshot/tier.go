package snapshot

import (
	"fmt"
	"time"
)

// Tier classifies a snapshot's current relevance by recency of access.
type Tier string

const (
	TierActive   Tier = "ACTIVE"
	TierRecent   Tier = "RECENT"
	TierArchived Tier = "ARCHIVED"
	TierExpired  Tier = "EXPIRED"
)

// Tier boundaries. Each window is half-open on its lower bound: an
// access exactly one hour old is RECENT, not ACTIVE.
const (
	ActiveWindow  = 1 * time.Hour
	RecentWindow  = 24 * time.Hour
	ExpiredCutoff = 720 * time.Hour // 30 days
)

// knownTiers is the set of valid tier tokens.
var knownTiers = map[Tier]bool{
	TierActive:   true,
	TierRecent:   true,
	TierArchived: true,
	TierExpired:  true,
}

// ParseTier validates an externally supplied tier token.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !knownTiers[t] {
		return "", fmt.Errorf("unknown tier %q (valid: ACTIVE, RECENT, ARCHIVED, EXPIRED)", s)
	}
	return t, nil
}

// TierFor classifies recency of access into a tier. A never-accessed
// snapshot is ARCHIVED, not ACTIVE: creation alone earns no recency.
func TierFor(lastAccessed *time.Time, now time.Time) Tier {
	if lastAccessed == nil {
		return TierArchived
	}
	elapsed := now.Sub(*lastAccessed)
	switch {
	case elapsed < ActiveWindow:
		return TierActive
	case elapsed < RecentWindow:
		return TierRecent
	case elapsed < ExpiredCutoff:
		return TierArchived
	default:
		return TierExpired
	}
}

// TierWindow returns the last-accessed interval (from, to] that maps to
// the given tier at the given instant. A nil bound is unbounded.
// includeNever reports whether never-accessed snapshots fall in the tier
// (true only for ARCHIVED).
//
// The store uses this to express tier classification as a SQL range so
// bulk queries classify by the same rule as TierFor, not by the cached
// tier column.
func TierWindow(tier Tier, now time.Time) (from, to *time.Time, includeNever bool) {
	active := now.Add(-ActiveWindow)
	recent := now.Add(-RecentWindow)
	expired := now.Add(-ExpiredCutoff)
	switch tier {
	case TierActive:
		return &active, nil, false
	case TierRecent:
		return &recent, &active, false
	case TierArchived:
		return &expired, &recent, true
	default: // TierExpired
		return nil, &expired, false
	}
}

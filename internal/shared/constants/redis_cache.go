package constants

import (
	"time"

	"github.com/google/uuid"
)

// Redis Cache Configuration
// Pattern: cinereserve:{module}:{operation}:{identifier}
// The prefix is applied by the cache service, builders return the remainder.

const (
	CACHE_PREFIX = "cinereserve"
)

// Highly Dynamic (Micro TTL: real-time sensitive)
const (
	TTL_REALTIME_SHORT = 5 * time.Second // occupied seat snapshot, dropped whenever seats are claimed or freed
)

// ================== RESERVATIONS MODULE ==================

const (
	CACHE_KEY_OCCUPIED_SEATS = "reservations:occupied:show:" // + show-id
)

// BuildOccupiedSeatsKey returns the key of a show's occupied seat snapshot
func BuildOccupiedSeatsKey(showID uuid.UUID) string {
	return CACHE_KEY_OCCUPIED_SEATS + showID.String()
}

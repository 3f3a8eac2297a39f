package seats

import (
	pkgErrors "cinereserve/pkg/errors"
)

// IsAvailable reports whether none of the requested seats is claimed.
// It is advisory: the authoritative check runs inside the ledger's claim transaction.
func IsAvailable(seatMap SeatMap, requested []string) bool {
	for _, seat := range requested {
		if _, taken := seatMap[seat]; taken {
			return false
		}
	}
	return true
}

// Validate parses raw and checks the seat exists in the layout.
func (l Layout) Validate(raw string) (SeatID, error) {
	id, err := ParseSeatID(raw)
	if err != nil {
		return SeatID{}, pkgErrors.Validation("%s", err.Error()).WithDetail("seat", raw)
	}
	if !l.Contains(id) {
		return SeatID{}, pkgErrors.Validation("seat %s is outside the theater layout", id).WithDetail("seat", id.String())
	}
	return id, nil
}

// ValidateSelection checks a requested seat list against the layout and the
// per-booking limit. It returns the normalized ids in request order.
// Every failure is a validation error, never an availability failure.
func ValidateSelection(layout Layout, requested []string, maxPerBooking int) ([]string, error) {
	if maxPerBooking <= 0 {
		maxPerBooking = DefaultMaxPerBooking
	}
	if len(requested) == 0 {
		return nil, pkgErrors.Validation("at least one seat is required")
	}
	if len(requested) > maxPerBooking {
		return nil, pkgErrors.Validation("at most %d seats can be booked at once, got %d", maxPerBooking, len(requested))
	}

	normalized := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, raw := range requested {
		id, err := layout.Validate(raw)
		if err != nil {
			return nil, err
		}
		seat := id.String()
		if _, dup := seen[seat]; dup {
			return nil, pkgErrors.Validation("seat %s requested more than once", seat).WithDetail("seat", seat)
		}
		seen[seat] = struct{}{}
		normalized = append(normalized, seat)
	}

	return normalized, nil
}

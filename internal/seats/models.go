package seats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxPerBooking is the largest number of seats one booking may hold.
const DefaultMaxPerBooking = 5

// Layout describes the theater grid a show is sold against.
// Rows are lettered from 'A'; seats are numbered from 1.
type Layout struct {
	Rows        int `json:"rows"`
	SeatsPerRow int `json:"seats_per_row"`
}

// DefaultLayout is the 13 x 12 auditorium (rows A..M).
func DefaultLayout() Layout {
	return Layout{Rows: 13, SeatsPerRow: 12}
}

// IsValid checks the layout can be addressed with single-letter rows.
func (l Layout) IsValid() bool {
	return l.Rows > 0 && l.Rows <= 26 && l.SeatsPerRow > 0
}

// Capacity returns the number of seats in the layout
func (l Layout) Capacity() int {
	return l.Rows * l.SeatsPerRow
}

// LastRow returns the letter of the last row.
func (l Layout) LastRow() byte {
	return byte('A' + l.Rows - 1)
}

// SeatID identifies a seat as row letter plus seat number, e.g. "C7".
type SeatID struct {
	Row    byte
	Number int
}

func (s SeatID) String() string {
	return fmt.Sprintf("%c%d", s.Row, s.Number)
}

// ParseSeatID parses "C7"-style identifiers. Input is trimmed and upper-cased.
func ParseSeatID(raw string) (SeatID, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if len(value) < 2 {
		return SeatID{}, fmt.Errorf("invalid seat id %q", raw)
	}

	row := value[0]
	if row < 'A' || row > 'Z' {
		return SeatID{}, fmt.Errorf("invalid seat row in %q", raw)
	}

	digits := value[1:]
	if digits[0] == '0' {
		return SeatID{}, fmt.Errorf("invalid seat number in %q", raw)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return SeatID{}, fmt.Errorf("invalid seat number in %q", raw)
		}
	}
	number, err := strconv.Atoi(digits)
	if err != nil || number <= 0 {
		return SeatID{}, fmt.Errorf("invalid seat number in %q", raw)
	}

	return SeatID{Row: row, Number: number}, nil
}

// Contains reports whether the seat exists in the layout.
func (l Layout) Contains(id SeatID) bool {
	return id.Row >= 'A' && id.Row <= l.LastRow() && id.Number >= 1 && id.Number <= l.SeatsPerRow
}

// SeatMap maps a claimed seat id to its holder (a booking id).
// Unclaimed seats are absent.
type SeatMap map[string]string

// Holder returns the holder of seat, if claimed.

// Claim binds every seat to holder. It refuses if any seat is already held
// and leaves the map untouched in that case.
func (m SeatMap) Claim(holder string, seatIDs []string) error {
	if conflicts := m.Conflicts(seatIDs); len(conflicts) > 0 {
		return fmt.Errorf("seats already claimed: %v", conflicts)
	}
	for _, seat := range seatIDs {
		m[seat] = holder
	}
	return nil
}

// Release removes every seat held by holder and returns what was removed.
func (m SeatMap) Release(holder string) []string {
	var released []string
	for seat, h := range m {
		if h == holder {
			released = append(released, seat)
			delete(m, seat)
		}
	}
	sort.Strings(released)
	return released
}

// Conflicts returns the requested seats that are already claimed, in request order.
func (m SeatMap) Conflicts(seatIDs []string) []string {
	var conflicts []string
	for _, seat := range seatIDs {
		if _, taken := m[seat]; taken {
			conflicts = append(conflicts, seat)
		}
	}
	return conflicts
}

// Occupied returns the claimed seat ids in sorted order.
func (m SeatMap) Occupied() []string {
	occupied := make([]string, 0, len(m))
	for seat := range m {
		occupied = append(occupied, seat)
	}
	SortSeatIDs(occupied)
	return occupied
}

// Clone returns an independent copy.
func (m SeatMap) Clone() SeatMap {
	clone := make(SeatMap, len(m))
	for seat, holder := range m {
		clone[seat] = holder
	}
	return clone
}

// SortSeatIDs sorts ids by row then seat number ("A2" before "A10").
// Unparseable ids sort lexically after valid ones.
func SortSeatIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := ParseSeatID(ids[i])
		b, errB := ParseSeatID(ids[j])
		switch {
		case errA != nil && errB != nil:
			return ids[i] < ids[j]
		case errA != nil:
			return false
		case errB != nil:
			return true
		case a.Row != b.Row:
			return a.Row < b.Row
		default:
			return a.Number < b.Number
		}
	})
}

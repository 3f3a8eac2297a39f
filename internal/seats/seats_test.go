package seats

import (
	"errors"
	"testing"

	pkgErrors "cinereserve/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SeatID
		wantErr bool
	}{
		{name: "simple", input: "C7", want: SeatID{Row: 'C', Number: 7}},
		{name: "two digit seat", input: "M12", want: SeatID{Row: 'M', Number: 12}},
		{name: "lower case and spaces", input: " b3 ", want: SeatID{Row: 'B', Number: 3}},
		{name: "missing number", input: "C", wantErr: true},
		{name: "zero seat", input: "C0", wantErr: true},
		{name: "leading zero", input: "C07", wantErr: true},
		{name: "digit row", input: "17", wantErr: true},
		{name: "garbage", input: "C7x", wantErr: true},
		{name: "signed number", input: "C+7", wantErr: true},
		{name: "negative number", input: "C-7", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeatID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayout_Contains(t *testing.T) {
	layout := DefaultLayout()

	assert.True(t, layout.Contains(SeatID{Row: 'A', Number: 1}))
	assert.True(t, layout.Contains(SeatID{Row: 'M', Number: 12}))
	assert.False(t, layout.Contains(SeatID{Row: 'N', Number: 1}))
	assert.False(t, layout.Contains(SeatID{Row: 'A', Number: 13}))
	assert.Equal(t, 156, layout.Capacity())
}

func TestLayout_Validate(t *testing.T) {
	layout := DefaultLayout()

	id, err := layout.Validate(" m12 ")
	require.NoError(t, err)
	assert.Equal(t, "M12", id.String())

	for _, raw := range []string{"N1", "A13", "A-1", "A+1", ""} {
		_, err := layout.Validate(raw)
		assert.True(t, errors.Is(err, pkgErrors.ErrValidation), raw)
	}
}

func TestIsAvailable(t *testing.T) {
	seatMap := SeatMap{"C1": "booking-1", "C2": "booking-1"}

	assert.True(t, IsAvailable(seatMap, []string{"C3", "C4"}))
	assert.False(t, IsAvailable(seatMap, []string{"C3", "C2"}))
	assert.True(t, IsAvailable(SeatMap{}, []string{"A1"}))
}

func TestValidateSelection(t *testing.T) {
	layout := DefaultLayout()

	t.Run("normalizes ids", func(t *testing.T) {
		got, err := ValidateSelection(layout, []string{"c1", "C2"}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"C1", "C2"}, got)
	})

	cases := map[string][]string{
		"empty":          {},
		"too many":       {"A1", "A2", "A3", "A4", "A5", "A6"},
		"bad syntax":     {"A1", "??"},
		"outside layout": {"Z1"},
		"duplicate":      {"A1", "a1"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateSelection(layout, input, 5)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pkgErrors.ErrValidation))
		})
	}
}

func TestSeatMap_ClaimAndRelease(t *testing.T) {
	seatMap := SeatMap{}

	require.NoError(t, seatMap.Claim("b1", []string{"A1", "A2"}))
	assert.Error(t, seatMap.Claim("b2", []string{"A3", "A2"}))
	assert.NotContains(t, seatMap, "A3", "failed claim must not partially apply")

	assert.Equal(t, []string{"A1", "A2"}, seatMap.Release("b1"))
	assert.Empty(t, seatMap.Release("b1"))
	assert.Empty(t, seatMap)
}

func TestSortSeatIDs(t *testing.T) {
	ids := []string{"B1", "A10", "A2", "bogus"}
	SortSeatIDs(ids)
	assert.Equal(t, []string{"A2", "A10", "B1", "bogus"}, ids)
}

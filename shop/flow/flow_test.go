package flow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

func TestParseLocations(t *testing.T) {
	got, err := ParseLocations("Moscow=5\nKazan = 2\n\nbroken line\nPerm=0\nMoscow=1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Moscow": 6, "Kazan": 2}, got)
}

func TestParseLocationsRejectsEmptyInput(t *testing.T) {
	for _, input := range []string{"", "no separator here", "=5", "Perm=-1"} {
		_, err := ParseLocations(input)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "input %q", input)
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	f := Fields{}
	f.SetInt64("category_id", 42)
	f.SetDecimal("price", decimal.RequireFromString("0.0015"))
	f.SetInt64List("unit_ids", []int64{3, 1, 2})

	id, ok := f.Int64("category_id")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	price, ok := f.Decimal("price")
	require.True(t, ok)
	assert.Equal(t, "0.0015", price.String())

	ids, ok := f.Int64List("unit_ids")
	require.True(t, ok)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, ok = f.Int64("missing")
	assert.False(t, ok)
}

func TestFieldsCloneIsIndependent(t *testing.T) {
	orig := Fields{"a": "1"}
	copied := orig.Clone()
	copied["a"] = "2"
	assert.Equal(t, "1", orig["a"])
}

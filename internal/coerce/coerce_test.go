package coerce

import (
	"math/big"
	"testing"
	"time"

	"github.com/orangescada/opcua/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByIndex_NilRawYieldsNil(t *testing.T) {
	assert.Nil(t, ByIndex(-1, nil))
	assert.Nil(t, ByIndex(2, nil))
}

func TestByIndex_Scalar(t *testing.T) {
	assert.Equal(t, 42.0, ByIndex(-1, 42.0))
}

func TestByIndex_ArrayInRange(t *testing.T) {
	raw := []float64{10, 20, 30, 40}
	assert.Equal(t, 30.0, ByIndex(2, raw))
}

func TestByIndex_ArrayOutOfRange(t *testing.T) {
	raw := []float64{10, 20}
	assert.Nil(t, ByIndex(5, raw))
}

func TestByType_Bool(t *testing.T) {
	assert.Equal(t, 1, ByType(domain.TagTypeBool, true))
	assert.Equal(t, 0, ByType(domain.TagTypeBool, false))
	assert.Equal(t, 1, ByType(domain.TagTypeBool, "nonempty"))
}

func TestByType_StringTruncation(t *testing.T) {
	got := ByType(domain.TagTypeString, "0123456789ABCDEFGHIJ")
	assert.Equal(t, "0123456789ABCDEF", got)
}

func TestByType_StringShorterThanLimit(t *testing.T) {
	got := ByType(domain.TagTypeString, "short")
	assert.Equal(t, "short", got)
}

func TestByType_Datetime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := ByType(domain.TagTypeDatetime, ts)
	assert.Equal(t, ts.UnixMilli(), got)
}

func TestByType_FloatPassthrough(t *testing.T) {
	assert.Equal(t, 3.14, ByType(domain.TagTypeFloat, 3.14))
}

func TestSetValue_Datetime(t *testing.T) {
	got, err := SetValue(domain.TagTypeDatetime, "01.03.2024 12:00:00")
	require.NoError(t, err)
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(got.(time.Time)))
}

func TestSetValue_DatetimeInvalid(t *testing.T) {
	_, err := SetValue(domain.TagTypeDatetime, "not a date")
	assert.ErrorIs(t, err, ErrInvalidDatetime)
}

func TestDatetimeRoundTrip(t *testing.T) {
	original := time.Date(2023, 11, 5, 8, 30, 45, 0, time.UTC)
	written := FormatWriteDatetime(original)
	parsed, err := ParseWriteDatetime(written)
	require.NoError(t, err)
	assert.True(t, original.Equal(parsed))
}

func TestReplaceElement(t *testing.T) {
	original := []float64{10, 20, 30, 40}
	got, err := ReplaceElement(original, 2, 99.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 99, 40}, got)
	// original must be untouched
	assert.Equal(t, []float64{10, 20, 30, 40}, original)
}

func TestReplaceElement_OutOfRange(t *testing.T) {
	_, err := ReplaceElement([]float64{1, 2}, 5, 9.0)
	assert.Error(t, err)
}

// referenceHiLo computes the hi/lo reduction using arbitrary-precision
// arithmetic directly on the combined 64-bit value, independent of the
// fixed-divisor implementation under test, to verify the round-trip
// property.
func referenceHiLo(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}

func TestUint64RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 14, 100, 99999999999999, 100000000000000, 1<<64 - 1, 1 << 40}
	for _, v := range cases {
		got := Uint64DecimalString(v)
		want := referenceHiLo(v)
		assert.Equal(t, want, got, "v=%d", v)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 123456789012345, -123456789012345, 1<<63 - 1, -(1 << 62)}
	for _, v := range cases {
		got := Int64DecimalString(v)
		want := big.NewInt(v).String()
		assert.Equal(t, want, got, "v=%d", v)
	}
}

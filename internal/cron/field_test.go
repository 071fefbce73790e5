package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldWildcard(t *testing.T) {
	vals, err := parseField("*", minuteSpec)
	require.NoError(t, err)
	assert.Len(t, vals, 60)
	assert.Equal(t, 0, vals[0])
	assert.Equal(t, 59, vals[len(vals)-1])
}

func TestParseFieldList(t *testing.T) {
	vals, err := parseField("1,5,5,3", minuteSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, vals)
}

func TestParseFieldRange(t *testing.T) {
	vals, err := parseField("10-12", hourSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, vals)
}

func TestParseFieldWrappingRange(t *testing.T) {
	// hour 22-2 wraps: 22,23,0,1,2
	vals, err := parseField("22-2", hourSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 22, 23}, vals)
}

func TestParseFieldStep(t *testing.T) {
	vals, err := parseField("*/15", minuteSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, vals)
}

func TestParseFieldRangeStep(t *testing.T) {
	vals, err := parseField("0-10/5", minuteSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5, 10}, vals)
}

func TestParseFieldBareValueStep(t *testing.T) {
	vals, err := parseField("10/20", minuteSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 30, 50}, vals)
}

func TestParseFieldNamesCaseInsensitive(t *testing.T) {
	vals, err := parseField("jan,DEC", monthSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 12}, vals)
}

func TestParseFieldDayOfWeekSevenAliasesZero(t *testing.T) {
	vals, err := parseField("7", dowSpec)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, vals)
}

func TestParseFieldOutOfRange(t *testing.T) {
	_, err := parseField("60", minuteSpec)
	require.ErrorIs(t, err, ErrSyntax)
}

func TestParseFieldZeroStepRejected(t *testing.T) {
	_, err := parseField("*/0", minuteSpec)
	require.ErrorIs(t, err, ErrSyntax)
}

func TestParseFieldEmptyRejected(t *testing.T) {
	_, err := parseField("", minuteSpec)
	require.ErrorIs(t, err, ErrSyntax)
}

func TestParseFieldUnparseableToken(t *testing.T) {
	_, err := parseField("garbage", minuteSpec)
	require.ErrorIs(t, err, ErrSyntax)
}

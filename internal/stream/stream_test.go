package stream

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var benchKeys []Key

func init() {
	r := rand.New(rand.NewSource(1))
	benchKeys = make([]Key, 10000)
	for i := range benchKeys {
		benchKeys[i] = Key{r.Uint64(), r.Uint64()}
	}
	sort.Slice(benchKeys, func(i, j int) bool { return benchKeys[i].Less(benchKeys[j]) })
}

func TestGenerateIDExplicit(t *testing.T) {
	id, err := GenerateID("5-10", MinKey, 0)
	require.NoError(t, err)
	assert.Equal(t, Key{5, 10}, id)
}

func TestGenerateIDRejectsZero(t *testing.T) {
	_, err := GenerateID("0-0", MinKey, 0)
	assert.ErrorIs(t, err, ErrMustBeGreaterThanZero)
}

func TestGenerateIDRejectsNonIncreasing(t *testing.T) {
	last := Key{5, 5}
	_, err := GenerateID("5-5", last, 0)
	assert.ErrorIs(t, err, ErrNotGreaterThanTop)

	_, err = GenerateID("4-999", last, 0)
	assert.ErrorIs(t, err, ErrNotGreaterThanTop)
}

func TestGenerateIDPartialWildcard(t *testing.T) {
	last := Key{5, 5}
	id, err := GenerateID("5-*", last, 0)
	require.NoError(t, err)
	assert.Equal(t, Key{5, 6}, id)

	id, err = GenerateID("6-*", last, 0)
	require.NoError(t, err)
	assert.Equal(t, Key{6, 0}, id)
}

func TestGenerateIDPartialWildcardEmptyStreamAtZero(t *testing.T) {
	id, err := GenerateID("0-*", MinKey, 0)
	require.NoError(t, err)
	assert.Equal(t, Key{0, 1}, id)
}

func TestGenerateIDFullWildcardUsesWallClock(t *testing.T) {
	id, err := GenerateID("*", MinKey, 12345)
	require.NoError(t, err)
	assert.Equal(t, Key{12345, 0}, id)

	id2, err := GenerateID("*", id, 12345)
	require.NoError(t, err)
	assert.Equal(t, Key{12345, 1}, id2)

	id3, err := GenerateID("*", id2, 12346)
	require.NoError(t, err)
	assert.Equal(t, Key{12346, 0}, id3)
}

func TestParseRangeBoundSpecials(t *testing.T) {
	lo, err := ParseRangeBound("-", false)
	require.NoError(t, err)
	assert.Equal(t, MinKey, lo)

	hi, err := ParseRangeBound("+", true)
	require.NoError(t, err)
	assert.Equal(t, MaxKey, hi)
}

func TestParseRangeBoundBareMs(t *testing.T) {
	lo, err := ParseRangeBound("5", false)
	require.NoError(t, err)
	assert.Equal(t, Key{5, 0}, lo)

	hi, err := ParseRangeBound("5", true)
	require.NoError(t, err)
	assert.Equal(t, Key{5, maxUint64}, hi)
}

func TestStreamAppendAndRange(t *testing.T) {
	var s Stream
	s.Append(Key{1, 1}, []FieldValue{{"f", "v"}})
	s.Append(Key{1, 2}, nil)
	s.Append(Key{2, 0}, nil)

	got := s.Range(Key{1, 1}, Key{1, 2})
	require.Len(t, got, 2)
	assert.Equal(t, Key{1, 1}, got[0].ID)
	assert.Equal(t, Key{1, 2}, got[1].ID)
	assert.Equal(t, []FieldValue{{"f", "v"}}, got[0].Fields)
}

func TestStreamRangeFullSpan(t *testing.T) {
	var s Stream
	ids := []Key{{1, 1}, {1, 2}, {1, 999999999}, {22, 22}, {69, 420}, {9999, 9}, {9999, 10}, {10000, 0}}
	for _, id := range ids {
		s.Append(id, nil)
	}

	got := s.Range(MinKey, MaxKey)
	require.Len(t, got, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, got[i].ID)
	}
}

func TestStreamRangeBoundedBothSides(t *testing.T) {
	var s Stream
	ids := []Key{{1, 1}, {1, 2}, {1, 999999999}, {22, 22}, {69, 420}, {9999, 9}, {9999, 10}, {10000, 0}}
	for _, id := range ids {
		s.Append(id, nil)
	}

	got := s.Range(Key{1, 3}, Key{9999, 10})
	want := []Key{{1, 999999999}, {22, 22}, {69, 420}, {9999, 9}, {9999, 10}}
	require.Len(t, got, len(want))
	for i, id := range want {
		assert.Equal(t, id, got[i].ID)
	}
}

func TestStreamRangeAgainstRandomKeys(t *testing.T) {
	var s Stream
	for i, k := range benchKeys {
		s.Append(k, []FieldValue{{"i", string(rune(i % 10))}})
	}

	r := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		from := Key{r.Uint64(), r.Uint64()}
		to := Key{r.Uint64(), r.Uint64()}
		if to.Less(from) {
			from, to = to, from
		}
		for _, e := range s.Range(from, to) {
			assert.False(t, e.ID.Less(from))
			assert.False(t, e.ID.Greater(to))
		}
	}
}

func TestStreamRangeEmptyWhenNothingMatches(t *testing.T) {
	var s Stream
	s.Append(Key{5, 0}, nil)
	got := s.Range(Key{10, 0}, MaxKey)
	assert.Empty(t, got)
}

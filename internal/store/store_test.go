package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flonle/diyredis-server/internal/stream"
)

func TestSetGetRoundTrip(t *testing.T) {
	ks := New()
	ks.Set("k", []byte("v"), nil)

	val, ok, err := ks.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestGetAbsentKeyIsNullNotError(t *testing.T) {
	ks := New()
	_, ok, err := ks.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetWithPXExpiresLazily(t *testing.T) {
	ks := New()
	ttl := time.Millisecond
	ks.Set("k", []byte("v"), &ttl)

	time.Sleep(5 * time.Millisecond)
	_, ok, err := ks.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, TypeNone, ks.TypeOf("k"))
}

func TestSetClearsPriorExpiryWhenOmitted(t *testing.T) {
	ks := New()
	ttl := time.Millisecond
	ks.Set("k", []byte("v1"), &ttl)
	ks.Set("k", []byte("v2"), nil)

	time.Sleep(5 * time.Millisecond)
	val, ok, err := ks.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), val)
}

func TestIncrFromAbsentKey(t *testing.T) {
	ks := New()
	n, err := ks.Incr("counter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestIncrOnNonIntegerFails(t *testing.T) {
	ks := New()
	ks.Set("k", []byte("notanumber"), nil)
	_, err := ks.Incr("k")
	assert.ErrorIs(t, err, ErrNotInteger)

	val, _, _ := ks.Get("k")
	assert.Equal(t, []byte("notanumber"), val, "value must be unchanged on error")
}

func TestIncrOnWrongTypeFails(t *testing.T) {
	ks := New()
	ks.RPush("k", []byte("a"))
	_, err := ks.Incr("k")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestGetOnWrongTypeIsNullNotError(t *testing.T) {
	ks := New()
	ks.RPush("k", []byte("a"))

	val, ok, err := ks.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestDeleteIsAtomicAcrossKeySet(t *testing.T) {
	ks := New()
	ks.Set("a", []byte("1"), nil)
	ks.Set("b", []byte("2"), nil)

	n := ks.Delete("a", "b", "missing")
	assert.Equal(t, 2, n)
	assert.Equal(t, TypeNone, ks.TypeOf("a"))
	assert.Equal(t, TypeNone, ks.TypeOf("b"))
}

func TestTypeOf(t *testing.T) {
	ks := New()
	ks.Set("s", []byte("v"), nil)
	ks.RPush("l", []byte("v"))
	ks.XAdd("st", "*", nil, 1)

	assert.Equal(t, TypeString, ks.TypeOf("s"))
	assert.Equal(t, TypeList, ks.TypeOf("l"))
	assert.Equal(t, TypeStream, ks.TypeOf("st"))
	assert.Equal(t, TypeNone, ks.TypeOf("nope"))
}

func TestRPushLPushOrdering(t *testing.T) {
	ks := New()
	n, err := ks.RPush("l", []byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ks.LPush("l", []byte("c"), []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := ks.LRange("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("d"), []byte("c"), []byte("a"), []byte("b")}, got)
}

func TestLRangeBoundaries(t *testing.T) {
	ks := New()
	ks.RPush("l", []byte("a"), []byte("b"), []byte("c"))

	got, err := ks.LRange("l", -1, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("c")}, got)

	got, err = ks.LRange("l", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ks.LRange("l", 2, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLPopDefaultVsExplicitCount(t *testing.T) {
	ks := New()
	ks.RPush("l", []byte("a"), []byte("b"), []byte("c"))

	single, ok, err := ks.LPop("l", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("a")}, single)

	one := 1
	arr, ok, err := ks.LPop("l", &one)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, [][]byte{[]byte("b")}, arr)
}

func TestLPopOnEmptyList(t *testing.T) {
	ks := New()
	_, ok, err := ks.LPop("missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	count := 3
	arr, _, err := ks.LPop("missing", &count)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{}, arr)
}

func TestRPushThenPopNTimesRoundTrips(t *testing.T) {
	ks := New()
	values := [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")}
	for _, v := range values {
		_, err := ks.RPush("l", v)
		require.NoError(t, err)
	}
	for _, want := range values {
		got, ok, err := ks.LPop("l", nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got[0])
	}
}

func TestListWrongType(t *testing.T) {
	ks := New()
	ks.Set("k", []byte("v"), nil)
	_, err := ks.RPush("k", []byte("v"))
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestXAddAndXRange(t *testing.T) {
	ks := New()
	id, err := ks.XAdd("s", "1-1", []stream.FieldValue{{Field: "f", Value: "v"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, stream.Key{Ms: 1, Seq: 1}, id)

	entries, err := ks.XRange("s", stream.MinKey, stream.MaxKey)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
}

func TestXAddRejectsZeroAndNonIncreasing(t *testing.T) {
	ks := New()
	_, err := ks.XAdd("s", "0-0", nil, 0)
	assert.ErrorIs(t, err, stream.ErrMustBeGreaterThanZero)

	_, err = ks.XAdd("s", "5-5", nil, 0)
	require.NoError(t, err)
	_, err = ks.XAdd("s", "5-5", nil, 0)
	assert.ErrorIs(t, err, stream.ErrNotGreaterThanTop)
}

func TestStreamEntriesAfterExcludesGivenID(t *testing.T) {
	ks := New()
	id1, _ := ks.XAdd("s", "1-1", nil, 0)
	id2, _ := ks.XAdd("s", "1-2", nil, 0)

	got, err := ks.StreamEntriesAfter("s", id1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id2, got[0].ID)
}

func TestAtomicallyComposesMultipleOperations(t *testing.T) {
	ks := New()
	ks.Set("k", []byte("1"), nil)

	var result int64
	ks.Atomically(func(tx *Tx) {
		tx.Set("k", []byte("1"), nil)
		n, _ := tx.Incr("k")
		result = n
	})

	assert.EqualValues(t, 2, result)
	val, _, _ := ks.Get("k")
	assert.Equal(t, []byte("2"), val)
}

func TestPopFirstReadyTriesKeysInOrder(t *testing.T) {
	ks := New()
	ks.RPush("b", []byte("from-b"))

	key, val, err := ks.PopFirstReady([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", key)
	assert.Equal(t, []byte("from-b"), val)
}

func TestPopFirstReadyNoneReady(t *testing.T) {
	ks := New()
	key, val, err := ks.PopFirstReady([]string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Nil(t, val)
}

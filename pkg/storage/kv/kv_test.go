package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get("selectedCoinSymbol")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("selectedCoinSymbol", "BTCUSDT"))
	require.NoError(t, s.Set("selectedCoinSymbol", "ETHUSDT"))

	v, ok, err := s.Get("selectedCoinSymbol")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ETHUSDT", v)

	// empty values are distinct from missing ones
	require.NoError(t, s.Set("empty", ""))
	v, ok, err = s.Get("empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)

	require.NoError(t, s.Delete("selectedCoinSymbol"))
	_, ok, err = s.Get("selectedCoinSymbol")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Set(" ", "x"), ErrEmptyKey)
}

// go test -v --run TestMemoryStore
func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

// go test -v --run TestBadgerStore
func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

// go test -v --run TestBadgerStoreSurvivesReopen
func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadger(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("binanceClientId", "abc"))
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("binanceClientId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

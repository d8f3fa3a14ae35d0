package snapshotstore

import (
	"errors"
	"testing"
	"time"

	"coinwatch/pkg/coinmonitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(symbols ...string) []coinmonitor.Instrument {
	out := make([]coinmonitor.Instrument, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, coinmonitor.Instrument{Symbol: s, LatestPrice: 1, HighPrice: 1})
	}
	return out
}

// go test -v --run TestApplyReplacesWholesale
func TestApplyReplacesWholesale(t *testing.T) {
	store := New()
	require.NotNil(t, store.Load())

	first := store.Apply(Update{Seq: 1, Instruments: list("BTC", "ETH"), At: time.Now()})
	second := store.Apply(Update{Seq: 2, Instruments: list("SOL"), At: time.Now()})

	// earlier readers keep their view
	assert.Len(t, first.Instruments, 2)
	assert.Len(t, second.Instruments, 1)
	assert.True(t, second.Has("SOL"))
	assert.False(t, second.Has("BTC"))
	assert.Same(t, second, store.Load())
}

// go test -v --run TestApplyCopiesInput
func TestApplyCopiesInput(t *testing.T) {
	store := New()
	in := list("BTC")
	store.Apply(Update{Seq: 1, Instruments: in})

	in[0].Symbol = "MUTATED"
	assert.Equal(t, "BTC", store.Load().Instruments[0].Symbol)
}

// go test -v --run TestDetailFailureKeepsPreviousBundle
func TestDetailFailureKeepsPreviousBundle(t *testing.T) {
	store := New()
	detail := &Detail{Symbol: "BTC", History: &coinmonitor.History{Symbol: "BTC"}}
	store.Apply(Update{Seq: 1, Instruments: list("BTC"), Detail: detail})

	boom := errors.New("history unavailable")
	st := store.Apply(Update{Seq: 2, Instruments: list("BTC", "ETH"), DetailErr: boom})

	assert.Len(t, st.Instruments, 2, "list still updated")
	require.NotNil(t, st.Detail)
	assert.Equal(t, "BTC", st.Detail.Symbol)
	assert.Nil(t, st.ListErr)
	assert.Equal(t, boom, st.DetailErr)
	assert.Equal(t, boom, st.Err())

	st = store.Apply(Update{Seq: 3, Instruments: list("BTC"), Detail: detail})
	assert.Nil(t, st.DetailErr)
}

// go test -v --run TestListFailureKeepsPreviousList
func TestListFailureKeepsPreviousList(t *testing.T) {
	store := New()
	store.Apply(Update{Seq: 1, Instruments: list("BTC")})

	boom := errors.New("connection refused")
	st := store.Apply(Update{Seq: 2, ListErr: boom})
	assert.Equal(t, []string{"BTC"}, []string{st.Instruments[0].Symbol})
	assert.Equal(t, boom, st.Err())

	st = store.Apply(Update{Seq: 3, Instruments: list()})
	assert.Empty(t, st.Instruments)
	assert.NoError(t, st.Err())
}

// go test -v --run TestDetailFor
func TestDetailFor(t *testing.T) {
	store := New()
	store.Apply(Update{Seq: 1, Detail: &Detail{Symbol: "BTC"}})

	assert.NotNil(t, store.Load().DetailFor("BTC"))
	assert.Nil(t, store.Load().DetailFor("ETH"))

	st := store.ClearDetail()
	assert.Same(t, st, store.Load())
	assert.Nil(t, st.DetailFor("BTC"))
}

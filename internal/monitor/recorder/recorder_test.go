package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coinwatch/internal/monitor/snapshotstore"
	"coinwatch/pkg/coinmonitor"
	"coinwatch/pkg/storage/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInserter keeps rows by the table's unique key and, like the ON CONFLICT
// clause, ignores a row whose key is already stored.
type fakeInserter struct {
	mu    sync.Mutex
	ticks [][]*postgres.InstrumentSnapshotRecord
	kept  map[string]*postgres.InstrumentSnapshotRecord
	err   error
	got   chan struct{}
}

func newFakeInserter() *fakeInserter {
	return &fakeInserter{
		kept: make(map[string]*postgres.InstrumentSnapshotRecord),
		got:  make(chan struct{}, 16),
	}
}

func (f *fakeInserter) InsertSnapshots(_ context.Context, records []*postgres.InstrumentSnapshotRecord) error {
	f.mu.Lock()
	f.ticks = append(f.ticks, records)
	for _, rec := range records {
		key := fmt.Sprintf("%s/%s/%d", rec.RunID, rec.Symbol, rec.TickSeq)
		if _, ok := f.kept[key]; !ok {
			f.kept[key] = rec
		}
	}
	f.mu.Unlock()
	f.got <- struct{}{}
	return f.err
}

func state(seq uint64, symbols ...string) *snapshotstore.State {
	list := make([]coinmonitor.Instrument, 0, len(symbols))
	for _, s := range symbols {
		list = append(list, coinmonitor.Instrument{Symbol: s, LatestPrice: 10, HighPrice: 10, InitialPrice: 8})
	}
	return &snapshotstore.State{Seq: seq, Instruments: list, UpdatedAt: time.Now()}
}

func waitInsert(t *testing.T, f *fakeInserter) {
	t.Helper()
	select {
	case <-f.got:
	case <-time.After(2 * time.Second):
		t.Fatal("insert not called")
	}
}

// go test -v --run TestRecorderWritesTicks
func TestRecorderWritesTicks(t *testing.T) {
	db := newFakeInserter()
	r := New(db, "", 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.StartWorker(ctx)

	r.Record(state(1, "BTCUSDT", "ETHUSDT"))
	waitInsert(t, db)
	r.Record(state(2, "BTCUSDT"))
	waitInsert(t, db)

	cancel()
	r.Wait()

	require.Len(t, db.ticks, 2)
	require.Len(t, db.ticks[0], 2)
	assert.Equal(t, uint64(1), db.ticks[0][0].TickSeq)
	assert.Equal(t, "BTCUSDT", db.ticks[0][0].Symbol)
	assert.True(t, db.ticks[0][0].Rising)
	assert.InDelta(t, 25.0, db.ticks[0][0].PercentChange, 1e-9)
	assert.Equal(t, uint64(2), db.ticks[1][0].TickSeq)
	assert.NotEmpty(t, db.ticks[0][0].RunID)
	assert.Equal(t, r.RunID(), db.ticks[1][0].RunID)
}

// go test -v --run TestRecorderKeepsOverlappingRuns
func TestRecorderKeepsOverlappingRuns(t *testing.T) {
	db := newFakeInserter()

	// a restart numbers its ticks from 1 again
	for _, runID := range []string{"run-a", "run-b"} {
		r := New(db, runID, 4, nil)
		ctx, cancel := context.WithCancel(context.Background())
		r.StartWorker(ctx)
		r.Record(state(1, "BTCUSDT"))
		waitInsert(t, db)
		r.Record(state(2, "BTCUSDT"))
		waitInsert(t, db)
		cancel()
		r.Wait()
	}

	require.Len(t, db.kept, 4)
	for _, runID := range []string{"run-a", "run-b"} {
		for seq := 1; seq <= 2; seq++ {
			rec, ok := db.kept[fmt.Sprintf("%s/BTCUSDT/%d", runID, seq)]
			require.True(t, ok, "%s tick %d lost", runID, seq)
			assert.Equal(t, runID, rec.RunID)
		}
	}
}

// go test -v --run TestRecorderGeneratesRunID
func TestRecorderGeneratesRunID(t *testing.T) {
	a := New(newFakeInserter(), "", 1, nil)
	b := New(newFakeInserter(), "", 1, nil)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, "fixed", New(newFakeInserter(), "fixed", 1, nil).RunID())
}

// go test -v --run TestRecorderSkipsFailedLists
func TestRecorderSkipsFailedLists(t *testing.T) {
	db := newFakeInserter()
	r := New(db, "", 4, nil)

	failed := state(1, "BTCUSDT")
	failed.ListErr = errors.New("timeout")
	r.Record(failed)
	r.Record(&snapshotstore.State{Seq: 2})
	r.Record(nil)

	assert.Zero(t, len(r.ch))
}

// go test -v --run TestRecorderDropsWhenFull
func TestRecorderDropsWhenFull(t *testing.T) {
	r := New(newFakeInserter(), "", 1, nil)

	r.Record(state(1, "BTCUSDT"))
	r.Record(state(2, "BTCUSDT"))
	assert.Equal(t, 1, len(r.ch))
}

// go test -v --run TestRecorderSurvivesInsertError
func TestRecorderSurvivesInsertError(t *testing.T) {
	db := newFakeInserter()
	db.err = errors.New("connection reset")
	r := New(db, "", 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartWorker(ctx)

	r.Record(state(1, "BTCUSDT"))
	waitInsert(t, db)
	r.Record(state(2, "BTCUSDT"))
	waitInsert(t, db)
}

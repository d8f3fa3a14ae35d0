// Package recorder archives every applied instrument list to the database.
package recorder

import (
	"context"
	"time"

	"coinwatch/internal/monitor/classify"
	"coinwatch/internal/monitor/snapshotstore"
	"coinwatch/pkg/coinmonitor"
	"coinwatch/pkg/storage/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const insertTimeout = 2 * time.Second

// Inserter is the database side of the recorder.
// postgres.PostgresClient satisfies it.
type Inserter interface {
	InsertSnapshots(ctx context.Context, records []*postgres.InstrumentSnapshotRecord) error
}

// Recorder queues states from the poller and writes them from its own worker,
// so a slow database never holds up a tick.
type Recorder struct {
	db     Inserter
	runID  string
	logger *zap.Logger
	ch     chan *snapshotstore.State
	done   chan struct{}
}

// New returns a recorder tagging its rows with runID. Tick numbers start over
// in every process, so each process needs its own run id; an empty runID gets
// a fresh one.
func New(db Inserter, runID string, buffer int, logger *zap.Logger) *Recorder {
	if runID == "" {
		runID = uuid.NewString()
	}
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:     db,
		runID:  runID,
		logger: logger,
		ch:     make(chan *snapshotstore.State, buffer),
		done:   make(chan struct{}),
	}
}

// Record queues st. States whose list fetch failed carry a stale list and are
// skipped. When the queue is full the state is dropped.
func (r *Recorder) Record(st *snapshotstore.State) {
	if st == nil || st.ListErr != nil || len(st.Instruments) == 0 {
		return
	}
	select {
	case r.ch <- st:
	default:
		r.logger.Warn("recorder queue full, tick dropped", zap.Uint64("seq", st.Seq))
	}
}

// StartWorker drains the queue until ctx is done. Wait blocks until it exits.
func (r *Recorder) StartWorker(ctx context.Context) {
	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-r.ch:
				r.write(st)
			}
		}
	}()
}

func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) write(st *snapshotstore.State) {
	records, err := postgres.ToSnapshotRecords(r.runID, st.Seq, st.UpdatedAt, rows(st.Instruments))
	if err != nil {
		r.logger.Warn("failed to convert tick to snapshot records", zap.Uint64("seq", st.Seq), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := r.db.InsertSnapshots(ctx, records); err != nil {
		r.logger.Warn("failed to insert snapshot records", zap.Uint64("seq", st.Seq), zap.Error(err))
		return
	}
	r.logger.Debug("tick recorded", zap.Uint64("seq", st.Seq), zap.Int("rows", len(records)))
}

// rows classifies each instrument the same way the dashboard does.
func rows(list []coinmonitor.Instrument) []postgres.SnapshotRow {
	out := make([]postgres.SnapshotRow, 0, len(list))
	for _, in := range list {
		out = append(out, postgres.SnapshotRow{
			Symbol:        in.Symbol,
			LatestPrice:   in.LatestPrice,
			InitialPrice:  in.InitialPrice,
			HighPrice:     in.HighPrice,
			LowPrice:      in.LowPrice,
			PercentChange: classify.PercentChange(in.LatestPrice, in.InitialPrice),
			Rising:        classify.IsRising(in),
			Cycle:         classify.CurrentCycle(in),
		})
	}
	return out
}

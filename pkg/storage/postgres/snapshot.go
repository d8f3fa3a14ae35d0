package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// InsertSnapshots archives the rows of one tick. Rows already recorded for the
// same (run, symbol, tick) are skipped.
func (p *PostgresClient) InsertSnapshots(ctx context.Context, records []*InstrumentSnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "run_id"},
			{Name: "symbol"},
			{Name: "tick_seq"},
		},
		DoNothing: true,
	}).CreateInBatches(records, 200)

	return tx.Error
}

// ListSnapshots returns the most recent rows for symbol, newest first.
func (p *PostgresClient) ListSnapshots(ctx context.Context, symbol string, limit int) ([]InstrumentSnapshotRecord, error) {
	var out []InstrumentSnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("polled_at DESC").
		Order("tick_seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresClient) DeleteSnapshotsBefore(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("polled_at < ?", before).
		Delete(&InstrumentSnapshotRecord{}).Error
}

// SnapshotRow is one instrument of a tick with its classification already
// worked out by the caller.
type SnapshotRow struct {
	Symbol        string
	LatestPrice   float64
	InitialPrice  float64
	HighPrice     float64
	LowPrice      float64
	PercentChange float64
	Rising        bool
	Cycle         int
}

// ToSnapshotRecords converts the rows of one tick of run runID into DB records.
func ToSnapshotRecords(runID string, seq uint64, polledAt time.Time, rows []SnapshotRow) ([]*InstrumentSnapshotRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("tick %d has no run id", seq)
	}
	out := make([]*InstrumentSnapshotRecord, 0, len(rows))
	for _, row := range rows {
		if row.Symbol == "" {
			return nil, fmt.Errorf("instrument without symbol in tick %d", seq)
		}
		out = append(out, &InstrumentSnapshotRecord{
			RunID:         runID,
			Symbol:        row.Symbol,
			TickSeq:       seq,
			LatestPrice:   row.LatestPrice,
			InitialPrice:  row.InitialPrice,
			HighPrice:     row.HighPrice,
			LowPrice:      row.LowPrice,
			PercentChange: row.PercentChange,
			Rising:        row.Rising,
			Cycle:         row.Cycle,
			PolledAt:      polledAt,
		})
	}
	return out, nil
}

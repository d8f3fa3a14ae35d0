package postgres

import "time"

// InstrumentSnapshotRecord is one instrument as seen by one applied poll tick.
type InstrumentSnapshotRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index; tick numbers restart with every process, RunID tells runs apart
	RunID   string `gorm:"type:text;not null;default:'';index:idx_snapshot_run_symbol_tick,unique"`
	Symbol  string `gorm:"type:text;not null;index:idx_snapshot_symbol;index:idx_snapshot_run_symbol_tick,unique"`
	TickSeq uint64 `gorm:"not null;index:idx_snapshot_run_symbol_tick,unique"`

	LatestPrice  float64 `gorm:"type:numeric;not null"`
	InitialPrice float64 `gorm:"type:numeric;not null"`
	HighPrice    float64 `gorm:"type:numeric;not null"`
	LowPrice     float64 `gorm:"type:numeric;not null"`

	PercentChange float64 `gorm:"type:numeric;not null"`
	Rising        bool    `gorm:"not null"`
	Cycle         int     `gorm:"not null"`

	PolledAt   time.Time `gorm:"not null;index:idx_snapshot_polled_at"`
	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (InstrumentSnapshotRecord) TableName() string {
	return "instrument_snapshot_record"
}

// PreferenceRecord is one persisted key/value pair (selection, credentials).
type PreferenceRecord struct {
	Key       string    `gorm:"primaryKey;type:text"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PreferenceRecord) TableName() string {
	return "preference_record"
}

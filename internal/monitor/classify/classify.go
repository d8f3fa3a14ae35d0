// Package classify derives view-level facts from raw instrument snapshots.
// Everything here is pure and cheap enough to rerun on every refresh.
package classify

import (
	"math"
	"sort"
	"strings"

	"coinwatch/pkg/coinmonitor"
)

// RisingThreshold is how close to its own peak an instrument must trade to be
// counted as rising: at most 0.5% below high_price.
const RisingThreshold = 0.995

// SortField selects the sort key.
type SortField string

const (
	FieldChange SortField = "change"
	FieldPrice  SortField = "price"
	FieldSymbol SortField = "symbol"
)

func (f SortField) IsValid() bool {
	switch f {
	case FieldChange, FieldPrice, FieldSymbol:
		return true
	}
	return false
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) IsValid() bool {
	return d == Asc || d == Desc
}

// Toggle flips the direction.
func (d Direction) Toggle() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// PercentChange returns the change from initial to latest in percent, or 0
// when there is no initial price to compare against.
func PercentChange(latest, initial float64) float64 {
	if initial == 0 || math.IsNaN(initial) {
		return 0
	}
	return (latest - initial) / initial * 100
}

// Change is PercentChange for a snapshot.
func Change(in coinmonitor.Instrument) float64 {
	return PercentChange(in.LatestPrice, in.InitialPrice)
}

// IsRising reports whether the latest price is within RisingThreshold of the
// observed high. The comparison is inclusive.
func IsRising(in coinmonitor.Instrument) bool {
	return in.LatestPrice >= in.HighPrice*RisingThreshold
}

// CurrentCycle returns the cycle that is currently accumulating: one past the
// highest populated slot, capped at CycleSlots. An instrument with no closed
// cycle is in cycle 1.
func CurrentCycle(in coinmonitor.Instrument) int {
	for slot := coinmonitor.CycleSlots; slot >= 1; slot-- {
		if in.Cycles[slot-1].IsSet() {
			return min(slot+1, coinmonitor.CycleSlots)
		}
	}
	return 1
}

// Partition splits list into rising and falling buckets, keeping input order.
func Partition(list []coinmonitor.Instrument) (rising, falling []coinmonitor.Instrument) {
	for _, in := range list {
		if IsRising(in) {
			rising = append(rising, in)
		} else {
			falling = append(falling, in)
		}
	}
	return rising, falling
}

// Options tunes Sort.
type Options struct {
	// AbsoluteForFalling compares |change| so that the biggest drop lands
	// where the biggest gain would in the rising bucket.
	AbsoluteForFalling bool
}

// Sort returns a stably sorted copy of list. Equal keys keep input order.
func Sort(list []coinmonitor.Instrument, field SortField, dir Direction, opts Options) []coinmonitor.Instrument {
	out := make([]coinmonitor.Instrument, len(list))
	copy(out, list)

	cmp := comparator(field, opts)
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if dir == Asc {
			return c < 0
		}
		return c > 0
	})
	return out
}

func comparator(field SortField, opts Options) func(a, b coinmonitor.Instrument) int {
	switch field {
	case FieldSymbol:
		return func(a, b coinmonitor.Instrument) int {
			return strings.Compare(a.Symbol, b.Symbol)
		}
	case FieldPrice:
		return func(a, b coinmonitor.Instrument) int {
			return compareFloat(a.LatestPrice, b.LatestPrice)
		}
	default:
		key := Change
		if opts.AbsoluteForFalling {
			key = func(in coinmonitor.Instrument) float64 { return math.Abs(Change(in)) }
		}
		return func(a, b coinmonitor.Instrument) int {
			return compareFloat(key(a), key(b))
		}
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

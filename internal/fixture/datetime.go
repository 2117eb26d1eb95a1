package fixture

import (
	"time"

	"github.com/roach88/condpush/internal/entity"
)

// Clock supplies successive instants. testutil.DeterministicClock
// satisfies it.
type Clock interface {
	Now() time.Time
}

// DateTimes builds a single DateTimeClass row holding value in both its
// full-precision and its scale-3 column.
func DateTimes(ids IDGenerator, value time.Time) *Dataset {
	d := newDataset("datetime")
	d.add(ids, DateTimeRow(value))
	return d
}

// DateTimeSeries builds n DateTimeClass rows, one per clock reading.
func DateTimeSeries(ids IDGenerator, clock Clock, n int) *Dataset {
	d := newDataset("datetime")
	for i := 0; i < n; i++ {
		d.add(ids, DateTimeRow(clock.Now()))
	}
	return d
}

// DateTimeRow returns an unsaved DateTimeClass instance.
func DateTimeRow(value time.Time) *entity.Instance {
	return entity.New("DateTimeClass", "").
		Set("Value", value).
		Set("ValueWithScale", value)
}

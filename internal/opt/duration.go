package opt

import (
	"errors"
	"fmt"
	"math"

	"apsplan/internal/catalog"
)

// FallbackMinutes is the duration given to a step on a line the catalog does
// not know.
const FallbackMinutes = 60

const minutesPerDay = 24 * 60

// maxDuration keeps horizons (sums of durations) far from int overflow.
const maxDuration = math.MaxInt32

var (
	ErrInvalidQuantity = errors.New("quantity must be a finite number >= 0")
	ErrDurationRange   = errors.New("duration out of range")
)

// DurationMinutes estimates how long quantity units take on line.
//
// The wire-drawing line uses the diameter-pair throughput table when dia is
// set and the pair is listed; every known line otherwise runs at its daily
// capacity. Results are truncated toward zero. Negative or non-finite
// quantities are rejected.
func DurationMinutes(c *catalog.Catalog, line catalog.LineID, quantity float64, dia *catalog.DiameterPair) (int, error) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidQuantity, quantity)
	}
	if line == c.WireDrawingLine() && dia != nil {
		if rate, err := c.WireRate(*dia); err == nil {
			return truncate(quantity / rate * 60)
		}
	}
	l, err := c.Line(line)
	if err != nil {
		return FallbackMinutes, nil
	}
	return truncate(quantity * (minutesPerDay / l.DailyCapacity))
}

func truncate(minutes float64) (int, error) {
	if minutes >= maxDuration {
		return 0, fmt.Errorf("%w: %.0f minutes", ErrDurationRange, minutes)
	}
	return int(minutes), nil
}

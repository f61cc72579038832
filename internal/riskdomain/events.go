package riskdomain

// Event is a single depeg event extracted from a price series: the day it
// occurred (as a fractional offset from the series start) and its magnitude
// in basis points of deviation from peg.
type Event struct {
	TimeDays  float64
	Magnitude float64 // bps, non-negative
}

// ExtractEvents groups consecutive threshold-breaching days into single
// events, each carrying the window's maximum deviation as its magnitude.
// Breach is defined as |1-price|*10000 >= thresholdBps.
func ExtractEvents(prices []float64, thresholdBps float64) []Event {
	events := make([]Event, 0)

	inBreach := false
	windowStart := 0
	windowMax := 0.0

	flush := func() {
		if !inBreach {
			return
		}
		// time_days of an event is the day its window started, matching the
		// one-extracted-event-per-window contract in spec.md §4.E scenario 3.
		events = append(events, Event{TimeDays: float64(windowStart), Magnitude: windowMax})
	}

	for i, p := range prices {
		dev := deviationBps(p)
		if dev >= thresholdBps {
			if !inBreach {
				inBreach = true
				windowStart = i
				windowMax = dev
			} else if dev > windowMax {
				windowMax = dev
			}
			continue
		}
		flush()
		inBreach = false
	}
	flush()

	return events
}

func deviationBps(price float64) float64 {
	d := 1 - price
	if d < 0 {
		d = -d
	}
	return d * 10000
}

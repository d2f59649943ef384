package workflow

import "math"

// MinPartSeconds drops trailing slivers too short to be worth a part
const MinPartSeconds = 1.0

// Part is one slice of the source timeline
type Part struct {
	Index    int     `json:"index"` // 1-based
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the exclusive end of the part
func (p Part) End() float64 {
	return p.Start + p.Duration
}

// PlanParts splits [start, end) of a total-second source into consecutive
// parts of partLen seconds; the last part takes whatever is left. An end of
// zero (or past the source) means the end of the source, and a non-positive
// partLen yields a single part. Parts shorter than MinPartSeconds are dropped.
func PlanParts(total, partLen, start, end float64) []Part {
	if total <= 0 || math.IsNaN(total) {
		return nil
	}
	if end <= 0 || end > total {
		end = total
	}
	if start < 0 || math.IsNaN(start) {
		start = 0
	}
	if start >= end {
		return nil
	}

	span := end - start
	if partLen <= 0 || partLen >= span {
		if span < MinPartSeconds {
			return nil
		}
		return []Part{{Index: 1, Start: start, Duration: span}}
	}

	n := int(math.Ceil(span / partLen))
	parts := make([]Part, 0, n)
	for i := 0; i < n; i++ {
		s := start + float64(i)*partLen
		d := math.Min(partLen, end-s)
		if d < MinPartSeconds {
			continue
		}
		parts = append(parts, Part{Index: len(parts) + 1, Start: s, Duration: d})
	}
	return parts
}

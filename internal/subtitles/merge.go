package subtitles

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// PartSubtitle is the SRT of one part and where that part starts in the
// source video
type PartSubtitle struct {
	Path   string        `json:"path"`
	Offset time.Duration `json:"offset"`
}

// ShiftCues moves every cue by offset, clamping at zero
func ShiftCues(cues []Cue, offset time.Duration) []Cue {
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Start = maxDuration(c.Start+offset, 0)
		c.End = maxDuration(c.End+offset, 0)
		out[i] = c
	}
	return out
}

// Renumber assigns sequential indices starting at 1
func Renumber(cues []Cue) []Cue {
	for i := range cues {
		cues[i].Index = i + 1
	}
	return cues
}

// CombineParts concatenates the cues of every part in order, shifting each
// part by its offset and renumbering from 1. Parts whose file is missing are
// skipped since a part may legitimately have produced no speech.
func CombineParts(parts []PartSubtitle) ([]Cue, error) {
	var all []Cue
	for _, p := range parts {
		cues, err := ParseSRTFile(p.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		all = append(all, ShiftCues(cues, p.Offset)...)
	}
	return Renumber(all), nil
}

// CombinePartsFile combines parts into a single SRT at output and returns
// the number of cues written
func CombinePartsFile(output string, parts []PartSubtitle) (int, error) {
	cues, err := CombineParts(parts)
	if err != nil {
		return 0, fmt.Errorf("failed to combine subtitles: %w", err)
	}
	if err := WriteSRTFile(output, cues); err != nil {
		return 0, err
	}
	return len(cues), nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

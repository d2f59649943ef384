package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cue is one SRT block
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

var timingPattern = regexp.MustCompile(`^\s*(\S+)\s*-->\s*(\S+)`)

// ParseSRT reads SRT text. Blocks without a valid timing line are skipped;
// indices are taken from the file when present and otherwise assigned in order.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var cues []Cue
	var block []string

	flush := func() error {
		defer func() { block = block[:0] }()
		cue, ok, err := parseBlock(block)
		if err != nil {
			return err
		}
		if ok {
			if cue.Index <= 0 {
				cue.Index = len(cues) + 1
			}
			cues = append(cues, cue)
		}
		return nil
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read srt: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseBlock(lines []string) (Cue, bool, error) {
	if len(lines) == 0 {
		return Cue{}, false, nil
	}

	var cue Cue
	i := 0
	if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		cue.Index = n
		i++
	}
	if i >= len(lines) {
		return Cue{}, false, nil
	}

	m := timingPattern.FindStringSubmatch(lines[i])
	if m == nil {
		return Cue{}, false, nil
	}
	start, err := ParseTimestamp(m[1])
	if err != nil {
		return Cue{}, false, err
	}
	end, err := ParseTimestamp(m[2])
	if err != nil {
		return Cue{}, false, err
	}
	cue.Start, cue.End = start, end
	cue.Text = strings.Join(lines[i+1:], "\n")
	return cue, true, nil
}

// ParseSRTFile reads and parses an SRT file
func ParseSRTFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open srt: %w", err)
	}
	defer f.Close()

	cues, err := ParseSRT(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cues, nil
}

// FormatTimestamp renders d as HH:MM:SS,mmm
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp accepts HH:MM:SS,mmm and the HH:MM:SS.mmm variant some
// tools emit
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(strings.Replace(s, ".", ",", 1), ",")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	hms := strings.Split(parts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range hms {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total += time.Duration(n) * units[i]
	}

	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total += time.Duration(ms) * time.Millisecond
	}
	return total, nil
}

// WriteSRT writes cues in SRT form using each cue's Index
func WriteSRT(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for _, c := range cues {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), strings.TrimRight(c.Text, "\n"))
	}
	return bw.Flush()
}

// WriteSRTFile writes cues to path
func WriteSRTFile(path string, cues []Cue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create srt: %w", err)
	}
	if err := WriteSRT(f, cues); err != nil {
		f.Close()
		return fmt.Errorf("failed to write srt: %w", err)
	}
	return f.Close()
}

// WrapCues rewraps every cue's text to maxChars per line. maxChars <= 0
// leaves the cues untouched.
func WrapCues(cues []Cue, maxChars int) []Cue {
	if maxChars <= 0 {
		return cues
	}
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Text = strings.Join(WrapText(c.Text, maxChars), "\n")
		out[i] = c
	}
	return out
}

// WrapText breaks text on word boundaries so no line exceeds maxChars runes,
// except single words longer than that
func WrapText(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	curr := words[0]
	for _, w := range words[1:] {
		if len([]rune(curr))+1+len([]rune(w)) <= maxChars {
			curr += " " + w
			continue
		}
		lines = append(lines, curr)
		curr = w
	}
	return append(lines, curr)
}

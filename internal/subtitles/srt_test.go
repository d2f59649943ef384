package subtitles

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

const sampleSRT = "\ufeff1\r\n00:00:01,000 --> 00:00:03,500\r\nHola a todos\r\n\r\n2\r\n00:00:04,000 --> 00:00:06,250\r\nsegunda linea\r\ncon dos renglones\r\n\r\n"

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}

	first := cues[0]
	if first.Index != 1 || first.Start != time.Second || first.End != 3500*time.Millisecond || first.Text != "Hola a todos" {
		t.Errorf("unexpected first cue: %+v", first)
	}
	if cues[1].Text != "segunda linea\ncon dos renglones" {
		t.Errorf("unexpected multi-line text: %q", cues[1].Text)
	}
}

func TestParseSRTSkipsGarbageAndAssignsIndices(t *testing.T) {
	input := "not a cue\n\n00:00:01.5 --> 00:00:02.000\nsin indice\n\n7\n00:00:03,000 --> 00:00:04,000\nsiete"
	cues, err := ParseSRT(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Index != 1 || cues[0].Start != 1500*time.Millisecond {
		t.Errorf("unexpected cue without index: %+v", cues[0])
	}
	if cues[1].Index != 7 || cues[1].Text != "siete" {
		t.Errorf("unexpected last cue: %+v", cues[1])
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"00:00:00,000", 0, false},
		{"00:05:01,250", 5*time.Minute + 1250*time.Millisecond, false},
		{"01:00:00.5", time.Hour + 500*time.Millisecond, false},
		{"00:00:02,1234", 2123 * time.Millisecond, false},
		{"00:02", 0, true},
		{"aa:00:00,000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "00:00:00,000"},
		{301*time.Second + 5*time.Millisecond, "00:05:01,005"},
		{2*time.Hour + 3*time.Minute, "02:03:00,000"},
		{-time.Second, "00:00:00,000"},
	}

	for _, tt := range tests {
		if got := FormatTimestamp(tt.input); got != tt.expected {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	var buf bytes.Buffer
	cues := []Cue{
		{Index: 1, Start: 0, End: 2 * time.Second, Text: "uno"},
		{Index: 2, Start: 2 * time.Second, End: 4 * time.Second, Text: "dos\n"},
	}
	if err := WriteSRT(&buf, cues); err != nil {
		t.Fatalf("WriteSRT() error = %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,000\nuno\n\n2\n00:00:02,000 --> 00:00:04,000\ndos\n\n"
	if buf.String() != want {
		t.Errorf("WriteSRT() = %q, want %q", buf.String(), want)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		expected []string
	}{
		{"fits", "hola mundo", 20, []string{"hola mundo"}},
		{"breaks on words", "esto es una frase bastante larga", 12, []string{"esto es una", "frase", "bastante", "larga"}},
		{"long word kept", "supercalifragilistico si", 5, []string{"supercalifragilistico", "si"}},
		{"runes counted", "ñandú ñandú", 11, []string{"ñandú ñandú"}},
		{"empty", "   ", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapText(tt.text, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.expected, "|") || len(got) != len(tt.expected) {
				t.Errorf("WrapText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWrapCues(t *testing.T) {
	cues := []Cue{{Index: 1, Text: "una linea demasiado larga"}}
	out := WrapCues(cues, 10)
	if out[0].Text != "una linea\ndemasiado\nlarga" {
		t.Errorf("WrapCues() = %q", out[0].Text)
	}
	if cues[0].Text != "una linea demasiado larga" {
		t.Errorf("WrapCues modified its input")
	}
	if same := WrapCues(cues, 0); same[0].Text != cues[0].Text {
		t.Errorf("WrapCues with 0 should not wrap")
	}
}

package storage

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"  clean name  ", "clean name"},
		{"trailing dots...", "trailing dots"},
		{"tab\there", "tabhere"},
		{"", "video"},
		{"???", "___"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilenameNeverKeepsInvalidChars(t *testing.T) {
	input := strings.Repeat(`<>:"/\|?*x`, 50)
	got := SanitizeFilename(input)

	if strings.ContainsAny(got, `<>:"/\|?*`) {
		t.Errorf("result still contains invalid characters: %q", got)
	}
	if len(got) > maxNameLength {
		t.Errorf("result length %d exceeds %d", len(got), maxNameLength)
	}
}

func TestSanitizeFilenameTruncatesOnRuneBoundary(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("ñ", 150))
	if !strings.HasPrefix(strings.Repeat("ñ", 150), got) {
		t.Errorf("truncation split a rune: %q", got)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://youtu.be/abc12345678", "abc12345678"},
		{"https://youtu.be/abc12345678?si=XyZ", "abc12345678"},
		{"https://www.youtube.com/watch?v=abc12345678&t=42s", "abc12345678"},
		{"https://youtube.com/shorts/abc12345678?feature=share", "abc12345678"},
		{"youtube.com/embed/abc12345678", "abc12345678"},
		{"https://m.youtube.com/live/abc12345678", "abc12345678"},
		{"abc12345678", "abc12345678"},
		{"/videos/My Talk: part 1.mp4", "My Talk_ part 1"},
		{`C:\videos\entrevista.mov`, "entrevista"},
		{"/downloads/Some Title [abc12345678].webm", "abc12345678"},
		{"https://cdn.example.com/media/clip.mp4?token=1", "clip"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := BaseName(tt.input); got != tt.expected {
				t.Errorf("BaseName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestYouTubeIDRejectsOtherHosts(t *testing.T) {
	for _, input := range []string{
		"https://vimeo.com/abc12345678",
		"https://youtube.com/channel/UCabcdefghij",
		"https://youtu.be/short",
		"not a url",
	} {
		if id := YouTubeID(input); id != "" {
			t.Errorf("YouTubeID(%q) = %q, want empty", input, id)
		}
	}
}

func TestPartIndex(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"/out/abc/final/abc_parte_03.mp4", 3},
		{"abc_visual_parte_12.mp4", 12},
		{"abc_parte_100.mp4", 100},
		{"abc.mp4", 0},
	}
	for _, tt := range tests {
		if got := PartIndex(tt.path); got != tt.want {
			t.Errorf("PartIndex(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

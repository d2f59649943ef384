package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ASS numpad alignments
const (
	AlignBottom = 2
	AlignMiddle = 5
	AlignTop    = 8
)

// Style is the subset of ASS style fields the burn-in exposes. Zero values
// leave the corresponding field of the source style alone, except Bold.
type Style struct {
	Font         string
	Size         int
	PrimaryColor string // #RRGGBB
	OutlineColor string
	BackColor    string
	Bold         bool
	Outline      float64
	Shadow       float64
	Alignment    int
	MarginV      int
	MarginH      int
}

// AlignmentFor maps a position name to an ASS alignment
func AlignmentFor(position string) int {
	switch strings.ToLower(strings.TrimSpace(position)) {
	case "top", "arriba":
		return AlignTop
	case "middle", "center", "centro":
		return AlignMiddle
	default:
		return AlignBottom
	}
}

// ColorToASS converts #RRGGBB into the &H00BBGGRR form ASS uses. It returns
// "" for anything that is not a 6 digit hex color.
func ColorToASS(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return ""
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return ""
	}
	hex = strings.ToUpper(hex)
	return "&H00" + hex[4:6] + hex[2:4] + hex[0:2]
}

// fields returns the ASS style fields to override, keyed by their Format name
func (s Style) fields() map[string]string {
	f := map[string]string{}
	if s.Font != "" {
		f["fontname"] = s.Font
	}
	if s.Size > 0 {
		f["fontsize"] = strconv.Itoa(s.Size)
	}
	if c := ColorToASS(s.PrimaryColor); c != "" {
		f["primarycolour"] = c
	}
	if c := ColorToASS(s.OutlineColor); c != "" {
		f["outlinecolour"] = c
	}
	if c := ColorToASS(s.BackColor); c != "" {
		f["backcolour"] = c
	}
	if s.Bold {
		f["bold"] = "-1"
	} else {
		f["bold"] = "0"
	}
	if s.Outline > 0 {
		f["outline"] = num(s.Outline)
		f["borderstyle"] = "1"
	}
	if s.Shadow > 0 {
		f["shadow"] = num(s.Shadow)
	}
	if s.Alignment > 0 {
		f["alignment"] = strconv.Itoa(s.Alignment)
	}
	if s.MarginV > 0 {
		f["marginv"] = strconv.Itoa(s.MarginV)
	}
	if s.MarginH > 0 {
		f["marginl"] = strconv.Itoa(s.MarginH)
		f["marginr"] = strconv.Itoa(s.MarginH)
	}
	return f
}

// defaultFormat is the [V4+ Styles] field order ffmpeg writes
var defaultFormat = []string{
	"name", "fontname", "fontsize", "primarycolour", "secondarycolour", "outlinecolour",
	"backcolour", "bold", "italic", "underline", "strikeout", "scalex", "scaley",
	"spacing", "angle", "borderstyle", "outline", "shadow", "alignment",
	"marginl", "marginr", "marginv", "encoding",
}

// RewriteStyles replaces the fields of every Style: line in an ASS document
// with the values set in style. Each style keeps its name.
func RewriteStyles(ass string, style Style) string {
	overrides := style.fields()
	format := defaultFormat
	inStyles := false

	lines := strings.Split(ass, "\n")
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") {
			inStyles = strings.EqualFold(trimmed, "[V4+ Styles]") || strings.EqualFold(trimmed, "[V4 Styles]")
			continue
		}
		if !inStyles {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "format":
			format = splitFields(value)
			for j := range format {
				format[j] = strings.ToLower(format[j])
			}
		case "style":
			values := splitFields(value)
			for j, name := range format {
				if j >= len(values) || name == "name" {
					continue
				}
				if v, ok := overrides[name]; ok {
					values[j] = v
				}
			}
			rewritten := "Style: " + strings.Join(values, ",")
			if strings.HasSuffix(raw, "\r") {
				rewritten += "\r"
			}
			lines[i] = rewritten
		}
	}
	return strings.Join(lines, "\n")
}

// RewriteStylesFile applies RewriteStyles to an ASS file in place
func RewriteStylesFile(path string, style Style) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read ass: %w", err)
	}
	if err := os.WriteFile(path, []byte(RewriteStyles(string(data), style)), 0644); err != nil {
		return fmt.Errorf("failed to write ass: %w", err)
	}
	return nil
}

// ForceStyle renders style as the value of the subtitles filter's
// force_style option
func ForceStyle(style Style) string {
	f := style.fields()
	order := []struct{ key, name string }{
		{"fontname", "FontName"},
		{"fontsize", "FontSize"},
		{"primarycolour", "PrimaryColour"},
		{"outlinecolour", "OutlineColour"},
		{"backcolour", "BackColour"},
		{"bold", "Bold"},
		{"borderstyle", "BorderStyle"},
		{"outline", "Outline"},
		{"shadow", "Shadow"},
		{"alignment", "Alignment"},
		{"marginl", "MarginL"},
		{"marginr", "MarginR"},
		{"marginv", "MarginV"},
	}

	parts := make([]string, 0, len(order))
	for _, o := range order {
		if v, ok := f[o.key]; ok {
			parts = append(parts, o.name+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

func splitFields(s string) []string {
	fields := strings.Split(s, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package storage

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 200

var (
	invalidChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
	youtubeIDExact = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	youtubeIDStart = regexp.MustCompile(`^([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)
	bracketedID    = regexp.MustCompile(`\[([A-Za-z0-9_-]{11})\]\s*$`)
	partIndex      = regexp.MustCompile(`_parte_(\d+)`)
)

// SanitizeFilename replaces characters Windows rejects in file names with '_'
func SanitizeFilename(name string) string {
	sanitized := invalidChars.ReplaceAllString(name, "_")

	sanitized = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, sanitized)

	sanitized = strings.TrimSpace(sanitized)
	sanitized = strings.TrimRight(sanitized, ". ")

	if len(sanitized) > maxNameLength {
		cut := maxNameLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimSpace(sanitized[:cut])
	}

	if sanitized == "" {
		return "video"
	}
	return sanitized
}

// BaseName derives the output directory name for a source video. YouTube
// links and bare ids resolve to the 11-character video id, everything else
// to the sanitized file stem.
func BaseName(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "video"
	}

	if id := YouTubeID(source); id != "" {
		return id
	}

	stem := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		stem = path.Base(u.Path)
		if stem == "/" || stem == "." {
			stem = u.Host
		}
	} else {
		stem = filepath.Base(strings.ReplaceAll(source, "\\", "/"))
	}

	stem = strings.TrimSuffix(stem, filepath.Ext(stem))

	// yt-dlp default naming: "Title [id].ext"
	if m := bracketedID.FindStringSubmatch(stem); m != nil {
		return m[1]
	}

	return SanitizeFilename(stem)
}

// YouTubeID extracts the video id from a YouTube URL or bare id, or returns ""
func YouTubeID(source string) string {
	source = strings.TrimSpace(source)
	if youtubeIDExact.MatchString(source) {
		return source
	}

	raw := source
	if !strings.Contains(raw, "://") && (strings.HasPrefix(raw, "youtu") || strings.HasPrefix(raw, "www.youtu") || strings.HasPrefix(raw, "m.youtu")) {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var candidate string
	switch {
	case host == "youtu.be":
		candidate = segments[0]
	case host == "youtube.com" || host == "music.youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			candidate = v
		} else if len(segments) >= 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v":
				candidate = segments[1]
			}
		}
	default:
		return ""
	}

	if m := youtubeIDStart.FindStringSubmatch(candidate); m != nil {
		return m[1]
	}
	return ""
}

// PartIndex extracts the 1-based part number from a part file name, 0 when
// the name carries none
func PartIndex(path string) int {
	m := partIndex.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

package audiocache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// Params identifies one rendition of a text. Two requests with equal
// normalized params share the same cache entry.
type Params struct {
	Text     string
	Provider string
	VoiceID  string
	Language string
	Speed    float64
	Format   string
}

var spaces = regexp.MustCompile(`\s+`)

// NormalizeText trims, collapses whitespace and lowercases.
func NormalizeText(s string) string {
	return strings.ToLower(spaces.ReplaceAllString(strings.TrimSpace(s), " "))
}

// Key is the hex sha256 of the normalized params.
func Key(p Params) string {
	speed := p.Speed
	if speed == 0 {
		speed = 1
	}
	parts := []string{
		NormalizeText(p.Text),
		strings.ToLower(strings.TrimSpace(p.Provider)),
		strings.TrimSpace(p.VoiceID),
		strings.ToLower(strings.TrimSpace(p.Language)),
		strconv.FormatFloat(speed, 'f', 2, 64),
		normalizeFormat(p.Format),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func normalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if f == "" {
		return "mp3"
	}
	return f
}

var entryName = regexp.MustCompile(`^[0-9a-f]{64}\.[a-z0-9]{1,8}$`)

// FileName is the stored name of an entry, as used in playback URLs.
func FileName(key, format string) string {
	return key + "." + normalizeFormat(format)
}

// ValidName reports whether name looks like a cache entry name.
func ValidName(name string) bool {
	return entryName.MatchString(name)
}

// ContentType maps an audio format to its MIME type.
func ContentType(format string) string {
	switch normalizeFormat(format) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ulaw", "mulaw":
		return "audio/basic"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

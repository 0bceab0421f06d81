package chat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// lightenPercent is how much dark colors are lifted per channel.
const lightenPercent = 30

// defaultPalette mirrors the Twitch colors assigned to users who never picked one.
var defaultPalette = [15]string{
	"#ff0000", "#0000ff", "#008000", "#b22222", "#ff7f50",
	"#9acd32", "#ff4500", "#2e8b57", "#daa520", "#d2691e",
	"#5f9ea0", "#1e90ff", "#ff69b4", "#8a2be2", "#00ff7f",
}

// ResolveColor returns the color to render username with, always as
// lowercase #rrggbb. A supplied color that is too dark for a dark background
// is lightened; a missing or malformed color falls back to a palette entry
// derived from the username.
func ResolveColor(username, color string) string {
	r, g, b, ok := parseHex(color)
	if !ok {
		return paletteColor(username)
	}
	if !isDark(r, g, b) {
		return hexColor(r, g, b)
	}
	return lighten(r, g, b, lightenPercent)
}

func parseHex(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}

func isDark(r, g, b int) bool {
	return (0.299*float64(r)+0.587*float64(g)+0.114*float64(b))/255 < 0.5
}

func lighten(r, g, b, percent int) string {
	step := 255 * percent / 100
	return hexColor(min(255, r+step), min(255, g+step), min(255, b+step))
}

func hexColor(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// paletteColor picks by the first UTF-16 code unit so the same username maps
// to the same entry as the browser overlay did.
func paletteColor(username string) string {
	if username == "" {
		return defaultPalette[0]
	}
	units := utf16.Encode([]rune(username))
	return defaultPalette[int(units[0])%len(defaultPalette)]
}

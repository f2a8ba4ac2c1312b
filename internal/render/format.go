package render

import (
	"strconv"
	"strings"
)

// kFormat renders large counters compactly: 999 → "999", 1500 → "1.5k",
// 9999 → "10k", 1500000 → "1.5M". One decimal place, trailing ".0" stripped.
func kFormat(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}

	divisor, suffix := 1000.0, "k"
	if n >= 1000000 {
		divisor, suffix = 1000000.0, "M"
	}

	s := strconv.FormatFloat(float64(n)/divisor, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + suffix
}

// textEscaper neutralises markup metacharacters in user-provided text before
// it is embedded in the SVG. Escaping happens exactly once, at render time.
var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

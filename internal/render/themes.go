package render

import "strings"

// Palette is the set of colors one card uses.
type Palette struct {
	Title  string
	Text   string
	Icon   string
	Bg     string
	Border string
}

// DefaultTheme is used when the requested theme name is unknown.
const DefaultTheme = "default"

var palettes = map[string]Palette{
	"default": {
		Title:  "#2f80ed",
		Text:   "#434d58",
		Icon:   "#4c71f2",
		Bg:     "#fffefe",
		Border: "#e4e2e2",
	},
	"dark": {
		Title:  "#ffffff",
		Text:   "#9f9f9f",
		Icon:   "#79ff97",
		Bg:     "#151515",
		Border: "#e4e2e2",
	},
	"radical": {
		Title:  "#fe428e",
		Text:   "#a9fef7",
		Icon:   "#f8d847",
		Bg:     "#141321",
		Border: "#e4e2e2",
	},
	"gruvbox": {
		Title:  "#fabd2f",
		Text:   "#8ec07c",
		Icon:   "#fe8019",
		Bg:     "#282828",
		Border: "#e4e2e2",
	},
	"tokyonight": {
		Title:  "#70a5fd",
		Text:   "#38bdae",
		Icon:   "#bf91f3",
		Bg:     "#1a1b27",
		Border: "#e4e2e2",
	},
}

// resolvePalette looks up the named theme (falling back to the default when
// the name is unknown) and then applies any individual color overrides.
func resolvePalette(opts Options) Palette {
	p, ok := palettes[opts.Theme]
	if !ok {
		p = palettes[DefaultTheme]
	}

	if c := normalizeColor(opts.TitleColor); c != "" {
		p.Title = c
	}
	if c := normalizeColor(opts.TextColor); c != "" {
		p.Text = c
	}
	if c := normalizeColor(opts.IconColor); c != "" {
		p.Icon = c
	}
	if c := normalizeColor(opts.BgColor); c != "" {
		p.Bg = c
	}
	if c := normalizeColor(opts.BorderColor); c != "" {
		p.Border = c
	}

	return p
}

// normalizeColor accepts hex colors with or without the leading "#" (query
// parameters usually omit it) and rejects anything that is not hex digits.
func normalizeColor(c string) string {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if c == "" {
		return ""
	}
	for _, r := range c {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return ""
		}
	}
	switch len(c) {
	case 3, 4, 6, 8:
		return "#" + c
	}
	return ""
}

// Package render turns an aggregated snapshot into an SVG card.
//
// Card is a pure function: no I/O, no shared state, identical output for
// identical inputs. All user-provided text is escaped here, immediately
// before embedding.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/sakif/statscard/internal/apperror"
	"github.com/sakif/statscard/internal/model"
)

const (
	cardWidth  = 495
	cardHeight = 245

	langBarX     = 25.0
	langBarWidth = 400.0
)

//go:embed templates/card.svg.tmpl
var cardTemplate string

var cardTmpl = template.Must(template.New("card").Parse(cardTemplate))

// Options controls a card's appearance. Zero values mean "use the theme".
type Options struct {
	Theme       string // named palette; unknown names fall back to the default
	TitleColor  string
	TextColor   string
	IconColor   string
	BgColor     string
	BorderColor string
	HideBorder  bool // suppress the border stroke, layout unchanged
	Compact     bool // drop bio/pronouns/secondary handle/percent labels
}

type statRow struct {
	Label string
	Value string
	Y     int
}

type barSegment struct {
	X     string
	Width string
	Color string
}

type langLabel struct {
	X       int
	Name    string
	Percent string
	Color   string
}

type cardViewModel struct {
	Width  int
	Height int

	// Border rect dimensions; inset by the half-pixel stroke offset.
	RectWidth  int
	RectHeight int

	Title     string
	Subtitle  string
	Bio       string
	AvatarURL string

	Palette     Palette
	BorderWidth int

	Rows []statRow

	HasLanguages bool
	BarY         int
	Segments     []barSegment
	Labels       []langLabel
}

// Card renders one profile card. It fails only on missing required input;
// every optional field degrades to a fallback instead.
func Card(profile model.Profile, stats *model.Stats, languages []model.LanguageStat, opts Options) (string, error) {
	if profile.Username == "" {
		return "", apperror.ValidationFailed("username", "cannot render a card without a username")
	}
	if stats == nil {
		return "", apperror.ValidationFailed("stats", "cannot render a card without stats")
	}

	title := profile.Name
	if title == "" {
		title = profile.Username
	}

	vm := cardViewModel{
		Width:      cardWidth,
		Height:     cardHeight,
		RectWidth:  cardWidth - 1,
		RectHeight: cardHeight - 1,
		Title:      escapeText(title),
		AvatarURL:  escapeText(profile.AvatarURL),
		Palette:    resolvePalette(opts),
		BarY:       200,
	}

	if !opts.HideBorder {
		vm.BorderWidth = 1
	}

	if opts.Compact {
		// Only the identity line survives; bio, pronouns and the secondary
		// handle are decorative.
		vm.Subtitle = escapeText("@" + profile.Username)
	} else {
		vm.Subtitle = subtitleLine(profile)
		vm.Bio = escapeText(profile.Bio)
	}

	rows := []statRow{
		{Label: "Total Stars", Value: kFormat(stats.Stars)},
		{Label: "Total Repos", Value: kFormat(stats.Repos)},
		{Label: "Total PRs", Value: kFormat(stats.PullRequests)},
		{Label: "Total Issues", Value: kFormat(stats.Issues)},
		{Label: "Commits This Year", Value: kFormat(stats.Commits)},
	}
	for i := range rows {
		rows[i].Y = 100 + i*20
	}
	vm.Rows = rows

	if len(languages) > 0 {
		vm.HasLanguages = true
		vm.Segments = languageSegments(languages, langBarWidth)
		if !opts.Compact {
			vm.Labels = languageLabels(languages)
		}
	}

	var buf bytes.Buffer
	if err := cardTmpl.Execute(&buf, vm); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return buf.String(), nil
}

// subtitleLine joins handle, pronouns and the secondary handle into one
// decorated line, skipping absent pieces.
func subtitleLine(profile model.Profile) string {
	parts := []string{"@" + profile.Username}
	if profile.Pronouns != "" {
		parts = append(parts, profile.Pronouns)
	}
	if profile.TwitterHandle != "" {
		parts = append(parts, "@"+profile.TwitterHandle)
	}
	return escapeText(strings.Join(parts, " · "))
}

// languageSegments lays the pre-sorted languages out left to right, each
// segment's width proportional to its share of the total byte size. A zero
// total is treated as 1 so an all-zero list still renders (as empty segments).
func languageSegments(languages []model.LanguageStat, barWidth float64) []barSegment {
	total := 0
	for _, l := range languages {
		total += l.Size
	}
	if total == 0 {
		total = 1
	}

	segments := make([]barSegment, 0, len(languages))
	offset := langBarX
	for _, l := range languages {
		width := float64(l.Size) / float64(total) * barWidth
		segments = append(segments, barSegment{
			X:     fmt.Sprintf("%.2f", offset),
			Width: fmt.Sprintf("%.2f", width),
			Color: escapeText(l.Color),
		})
		offset += width
	}
	return segments
}

func languageLabels(languages []model.LanguageStat) []langLabel {
	total := 0
	for _, l := range languages {
		total += l.Size
	}
	if total == 0 {
		total = 1
	}

	labels := make([]langLabel, 0, len(languages))
	for i, l := range languages {
		pct := float64(l.Size) / float64(total) * 100
		labels = append(labels, langLabel{
			X:       int(langBarX) + i*80,
			Name:    escapeText(l.Name),
			Percent: fmt.Sprintf("%.1f%%", pct),
			Color:   escapeText(l.Color),
		})
	}
	return labels
}

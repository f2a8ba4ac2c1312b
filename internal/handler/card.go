// Package handler contains the HTTP layer: request parsing, response
// formatting, and the mapping from domain errors to status codes.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/statscard/internal/model"
	"github.com/sakif/statscard/internal/render"
)

// SnapshotService is the part of the coordinator the handler needs.
type SnapshotService interface {
	GetSnapshot(ctx context.Context, username string, includeLangs bool) (*model.Snapshot, error)
}

// CardHandler serves rendered profile cards.
type CardHandler struct {
	service SnapshotService
	logger  *slog.Logger
}

func NewCardHandler(service SnapshotService, logger *slog.Logger) *CardHandler {
	return &CardHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCard serves GET /api/card/{username}.
//
// Query parameters: theme, title_color, text_color, icon_color, bg_color,
// border_color, hide_border, compact, langs. The langs flag defaults to true;
// it is part of the cache identity, so the two variants never mix.
func (h *CardHandler) HandleCard(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	q := r.URL.Query()

	includeLangs := parseBool(q.Get("langs"), true)

	opts := render.Options{
		Theme:       q.Get("theme"),
		TitleColor:  q.Get("title_color"),
		TextColor:   q.Get("text_color"),
		IconColor:   q.Get("icon_color"),
		BgColor:     q.Get("bg_color"),
		BorderColor: q.Get("border_color"),
		HideBorder:  parseBool(q.Get("hide_border"), false),
		Compact:     parseBool(q.Get("compact"), false),
	}

	snapshot, err := h.service.GetSnapshot(r.Context(), username, includeLangs)
	if err != nil {
		writeError(w, err)
		return
	}

	svg, err := render.Card(snapshot.Profile, &snapshot.Stats, snapshot.Languages, opts)
	if err != nil {
		h.logger.Error("card render failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=1800")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, svg); err != nil {
		h.logger.Warn("failed to write card response", slog.String("error", err.Error()))
	}
}

// HandleHealth serves GET /healthz.
func (h *CardHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseBool reads a query flag, keeping the default on absence or garbage.
func parseBool(value string, def bool) bool {
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

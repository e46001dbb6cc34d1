package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/freeeve/dirty-laundry/internal/service"
)

const qrSize = 320 // readable across a living room from a TV

// QRHandler renders the join link of a session as a QR code for the shared
// screen.
type QRHandler struct {
	svc       *service.SessionService
	publicURL string
}

// NewQRHandler creates a QRHandler. publicURL is the externally reachable
// base URL; when empty it is derived from the request.
func NewQRHandler(svc *service.SessionService, publicURL string) *QRHandler {
	return &QRHandler{svc: svc, publicURL: strings.TrimRight(publicURL, "/")}
}

// JoinURL returns the link players open to join code.
func (h *QRHandler) JoinURL(r *http.Request, code string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

// ServeQR handles GET /api/v1/sessions/{code}/qr
func (h *QRHandler) ServeQR(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.GetSession(r.Context(), code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	png, err := qrcode.Encode(h.JoinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("QR generation failed")
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

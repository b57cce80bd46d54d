package mapserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"allergen-map/internal/common"
	"allergen-map/internal/mapview"
	"allergen-map/internal/session"
	"allergen-map/internal/utils/naming"
)

// SessionResponse is the JSON form of a session's view
type SessionResponse struct {
	ID         string       `json:"id"`
	View       mapview.View `json:"view"`
	OverlayURL string       `json:"overlayUrl,omitempty"`
	Error      *ErrorBody   `json:"error,omitempty"`
}

// SelectionRequest changes a session's selection.
// Selection is a display label, a selection key, "" or "none".
type SelectionRequest struct {
	Selection string `json:"selection"`
}

// NewSessionResponse builds the response of s showing v. OverlayURL is server relative.
func NewSessionResponse(s *session.Session, v mapview.View) SessionResponse {
	resp := SessionResponse{ID: s.ID.String(), View: v}
	if v.HasOverlay() {
		// the revision busts browser caches between selections
		resp.OverlayURL = fmt.Sprintf("/api/sessions/%s/overlay.png?rev=%d", s.ID, v.Revision)
	}
	return resp
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Sessions.Create()
	writeJSON(w, http.StatusCreated, NewSessionResponse(sess, sess.Controller.View()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewSessionResponse(sess, sess.Controller.View()))
}

// handleSelect changes the selection and answers once the overlay is ready.
// Failures still carry the resulting view next to the error.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body, expected {\"selection\": \"...\"}", http.StatusBadRequest)
		return
	}

	v, err := sess.Controller.Select(r.Context(), req.Selection)
	resp := NewSessionResponse(sess, v)
	if err != nil {
		if errors.Is(err, mapview.ErrClosed) {
			err = fmt.Errorf("session expired: %w", common.ErrNotFound)
		}
		body := errorBody(err)
		resp.Error = &body
		writeJSON(w, common.HTTPStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOverlay serves the current overlay as PNG
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	v := sess.Controller.View()
	if !v.HasOverlay() {
		s.writeError(w, r, fmt.Errorf("no overlay to show: %w", common.ErrNoSelection))
		return
	}

	b := v.Overlay.Bounds
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Overlay-Bounds", fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q",
		naming.OverlayFileName(v.Key, b.South, b.West, b.North, b.East)))
	if err := v.Overlay.EncodePNG(w); err != nil {
		s.logger.Warn("overlay write failed", "session", sess.ID, "err", err)
	}
}

// handleExport streams the archive of the current selection. The bundle is built
// completely before the first byte is sent, so failures still get a proper status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	bundle, err := s.deps.Bundler.Export(r.Context(), sess.Controller.Selection())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bundle.ArchiveName))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := bundle.WriteTo(w); err != nil {
		s.logger.Warn("export stream interrupted", "session", sess.ID, "dataset", bundle.Key, "err", err)
	}
}

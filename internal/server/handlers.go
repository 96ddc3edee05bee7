package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/query"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports ok, or degraded when the vector index and the
// metadata store disagree on how many units exist.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.CountUnits(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "detail": err.Error()})
		return
	}

	status := "ok"
	if s.index.Count() != stored {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"units_stored":  stored,
		"units_indexed": s.index.Count(),
	})
}

// handleQuery runs one retrieval request.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		writeError(w, http.StatusBadRequest, "alpha must be between 0 and 1")
		return
	}
	if req.UnitType != "" &&
		req.UnitType != string(model.TextOnly) &&
		req.UnitType != string(model.ImageWithContext) {
		writeError(w, http.StatusBadRequest, "unknown unit_type "+req.UnitType)
		return
	}

	resp, err := s.orchestrator.Run(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleContentUnit returns one unit with its document provenance.
func (s *Server) handleContentUnit(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	unit, err := s.store.GetUnit(r.Context(), unitID)
	if errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "content unit not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	doc, err := s.store.GetDocument(r.Context(), unit.DocID)
	if err != nil && !errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"unit": unit}
	if doc != nil {
		resp["document"] = doc
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePDFSection returns every unit in the section a hit came from,
// so a caller can show the surrounding context of a search result.
func (s *Server) handlePDFSection(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	units, err := s.store.SectionUnits(r.Context(), unitID)
	if errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "content unit not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sectionPath := ""
	if len(units) > 0 {
		sectionPath = units[0].SectionPathString()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"section_path": sectionPath,
		"units":        units,
	})
}

// handleImage streams the extracted image file for an asset.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	img, err := s.store.GetImage(r.Context(), imageID)
	if errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Stored paths are relative to the image directory; reject anything
	// that escapes it.
	full := filepath.Join(s.cfg.ImageDir, filepath.Clean("/"+img.ImagePath))
	if !strings.HasPrefix(full, filepath.Clean(s.cfg.ImageDir)+string(filepath.Separator)) {
		writeError(w, http.StatusBadRequest, "invalid image path")
		return
	}
	http.ServeFile(w, r, full)
}

// handleDocuments lists all ingested documents.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/model"
	"github.com/mkoblar/machdoc/internal/query"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string    { return "stub" }
func (stubEmbedder) Dimensions() int { return 3 }
func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func newTestServer(t *testing.T) (*Server, *metastore.Store, *vectorindex.Index) {
	t.Helper()
	store, err := metastore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := vectorindex.New(stubEmbedder{})
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}

	ctx := context.Background()
	r, err := store.BeginReplace(ctx, "doc1", "/manuals/mill.layout.json")
	if err != nil {
		t.Fatalf("BeginReplace: %v", err)
	}
	doc := model.Document{
		DocID: "doc1", Title: "Mill Manual",
		FilePath: "/manuals/mill.layout.json", TotalPages: 10, ContentHash: "h",
	}
	if err := r.StageDocument(ctx, doc); err != nil {
		t.Fatalf("StageDocument: %v", err)
	}
	images := []model.ImageAsset{{
		ImageID: "img1", DocID: "doc1", PageNumber: 4,
		ImagePath: "doc1/p4_0.png",
	}}
	if err := r.StageImages(ctx, images); err != nil {
		t.Fatalf("StageImages: %v", err)
	}
	units := []model.ContentUnit{
		{
			UnitID: "u1", DocID: "doc1", PageNumber: 3,
			SectionPath: []string{"Setup"}, Text: "mount the vise square to the table",
			UnitType: model.TextOnly, TokenCount: 8,
		},
		{
			UnitID: "u2", DocID: "doc1", PageNumber: 4,
			SectionPath: []string{"Setup"}, Text: "Figure 2: vise mounting bolts",
			UnitType: model.ImageWithContext, ImageID: "img1", TokenCount: 6,
		},
	}
	if err := r.StageUnits(ctx, units); err != nil {
		t.Fatalf("StageUnits: %v", err)
	}
	if err := r.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var entries []vectorindex.Entry
	for _, u := range units {
		entries = append(entries, vectorindex.Entry{
			UnitID: u.UnitID, Text: u.Text, Vector: []float32{1, 0, 0}, Unit: u,
		})
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	imageDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(imageDir, "doc1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(imageDir, "doc1", "p4_0.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	orch := query.New(stubEmbedder{}, idx, store, nil, query.Options{Alpha: 0.5, TopK: 5})
	srv := New(Config{Port: 0, ImageDir: imageDir}, store, idx, orch)
	return srv, store, idx
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHealthDegradedOnDrift(t *testing.T) {
	srv, _, idx := newTestServer(t)

	// A vector with no metadata row puts the stores out of step.
	orphan := model.ContentUnit{UnitID: "ghost", DocID: "doc1", Text: "x", UnitType: model.TextOnly}
	err := idx.Upsert(context.Background(), []vectorindex.Entry{{
		UnitID: "ghost", Text: "x", Vector: []float32{0, 1, 0}, Unit: orphan,
	}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	w := doRequest(t, srv, "GET", "/healthz", "")
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", body["status"])
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, "POST", "/query", `{"query":"vise mounting","top_k":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp query.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].Provenance.Title != "Mill Manual" {
		t.Errorf("missing provenance: %+v", resp.Results[0].Provenance)
	}
}

func TestQueryValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  "}`},
		{"bad alpha", `{"query":"x","alpha":1.5}`},
		{"bad unit type", `{"query":"x","unit_type":"VIDEO"}`},
		{"malformed json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, srv, "POST", "/query", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestContentUnitEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/content_unit/u2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Unit     model.ContentUnit `json:"unit"`
		Document model.Document    `json:"document"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Unit.UnitID != "u2" || body.Document.Title != "Mill Manual" {
		t.Errorf("unexpected payload: %+v", body)
	}

	if w := doRequest(t, srv, "GET", "/content_unit/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing unit, got %d", w.Code)
	}
}

func TestPDFSectionEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/pdf_section/u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		SectionPath string              `json:"section_path"`
		Units       []model.ContentUnit `json:"units"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.SectionPath != "Setup" {
		t.Errorf("unexpected section path %q", body.SectionPath)
	}
	if len(body.Units) != 2 {
		t.Errorf("expected both units of the section, got %d", len(body.Units))
	}
}

func TestImageEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/image/img1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("unexpected image body %q", w.Body.String())
	}

	if w := doRequest(t, srv, "GET", "/image/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing image, got %d", w.Code)
	}
}

func TestDocumentsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(t, srv, "GET", "/documents", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Documents []model.Document `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Documents) != 1 || body.Documents[0].DocID != "doc1" {
		t.Errorf("unexpected documents: %+v", body.Documents)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.cfg.AllowAll = true
	srv.router = srv.buildRouter()

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

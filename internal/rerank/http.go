package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPReranker calls a Cohere-compatible rerank endpoint.
type HTTPReranker struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewHTTPReranker creates a reranker posting to the given endpoint.
func NewHTTPReranker(endpoint, model string, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReranker{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReranker) Name() string {
	if r.model != "" {
		return "http/" + r.model
	}
	return "http"
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Rerank posts the query and documents and maps the returned relevance
// scores back to input order. Documents the service omits score 0.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("reranker error: %s", parsed.Error)
	}

	scores := make([]float64, len(documents))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", res.Index)
		}
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}

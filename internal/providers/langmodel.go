package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
)

// LanguageModel queries an HTTP completion endpoint for expansion
// candidates. Disabled deployments simply omit it from the provider list;
// a degraded endpoint surfaces as ErrProviderUnavailable, which the
// aggregator swallows.
type LanguageModel struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewLanguageModel creates the client. timeout bounds the whole HTTP
// exchange, independent of the aggregator's per-call context.
func NewLanguageModel(endpoint, model, apiKey string, timeout time.Duration) *LanguageModel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LanguageModel{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in logs.
func (m *LanguageModel) Name() string { return "langmodel" }

type lmRequest struct {
	Model        string `json:"model,omitempty"`
	Abbreviation string `json:"abbreviation"`
	Before       string `json:"before,omitempty"`
	After        string `json:"after,omitempty"`
}

type lmResponse struct {
	Suggestions []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"suggestions"`
}

// Suggest posts the key and its context window and maps the response to
// suggestions. Responses without per-candidate confidence get the
// provider default.
func (m *LanguageModel) Suggest(ctx context.Context, key string, win suggest.Window) ([]suggest.Suggestion, error) {
	body, err := json.Marshal(lmRequest{
		Model:        m.model,
		Abbreviation: key,
		Before:       strings.Join(win.Before, " "),
		After:        strings.Join(win.After, " "),
	})
	if err != nil {
		return nil, errors.NewProvider(m.Name(), key, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewProvider(m.Name(), key, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.NewProvider(m.Name(), key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.NewProvider(m.Name(), key, fmt.Errorf("endpoint returned %s", resp.Status))
	}

	var decoded lmResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.NewProvider(m.Name(), key, err)
	}
	return mapSuggestions(decoded), nil
}

func mapSuggestions(decoded lmResponse) []suggest.Suggestion {
	out := make([]suggest.Suggestion, 0, len(decoded.Suggestions))
	for _, s := range decoded.Suggestions {
		if s.Text == "" {
			continue
		}
		conf := s.Confidence
		if conf <= 0 || conf > 1 {
			conf = suggest.ConfidenceLanguageModel
		}
		out = append(out, suggest.Suggestion{
			Source:     suggest.SourceLanguageModel,
			Text:       s.Text,
			Confidence: conf,
		})
	}
	return out
}

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// HTTPSource reads the outcome value from a JSON endpoint, taking the
// named top-level field. The field may hold a JSON number or a numeric
// string; either is parsed exactly, without a float round trip.
type HTTPSource struct {
	url        string
	field      string
	httpClient *http.Client
}

// NewHTTPSource creates an HTTPSource polling the given URL.
func NewHTTPSource(url, field string) *HTTPSource {
	return &HTTPSource{
		url:   url,
		field: field,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var _ domain.ReportSource = (*HTTPSource)(nil)

// Report fetches the endpoint and returns the field's value scaled to two
// implied decimals, truncating any further precision.
func (s *HTTPSource) Report(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle: fetch %s: status %d", s.url, resp.StatusCode)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("oracle: decode response: %w", err)
	}
	raw, ok := doc[s.field]
	if !ok {
		return 0, fmt.Errorf("oracle: field %q missing in response", s.field)
	}

	return parseQuote(raw)
}

// parseQuote converts a JSON number or numeric string to two implied
// decimals.
func parseQuote(raw json.RawMessage) (int64, error) {
	text := string(raw)
	if len(text) >= 2 && text[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, fmt.Errorf("oracle: unquote value: %w", err)
		}
		text = unquoted
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("oracle: parse value %q: %w", text, err)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("oracle: non-positive value %s", d)
	}

	scaled := d.Shift(2)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("oracle: value %s overflows int64 after scaling", d)
	}
	return scaled.IntPart(), nil
}

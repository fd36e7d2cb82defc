package refresh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// HTTPRateSource queries a configured quote-price endpoint
// ("<base>?coin=<name>" returning {"rate": <float>}) with a single JSON
// GET rather than a dedicated price feed SDK. Both rate sources default to
// PROC_HANDLER_SCANNER_URL when PROC_HANDLER_RATE_URL_FAST/SLOW are unset.
type HTTPRateSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRateSource(baseURL string) *HTTPRateSource {
	return &HTTPRateSource{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *HTTPRateSource) Rate(ctx context.Context, coinName string) (float64, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("coin", coinName)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Rate, nil
}

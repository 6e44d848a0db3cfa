package carbon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// Source produces one grid carbon-intensity reading per call, in gCO2/kWh.
// The scheduler samples it exactly once per tick.
type Source interface {
	Read(ctx context.Context) (int, error)
}

// Config selects and configures a carbon signal source.
type Config struct {
	// Fixed pins the reading to a constant when > 0 (CARBON_FIXED).
	Fixed int
	// URL points at a live intensity API (Electricity Maps style JSON).
	// Ignored when Fixed is set.
	URL string
	// Token is sent as an auth-token header to the live API when set.
	Token string
	// Timeout bounds each live API request.
	Timeout time.Duration
}

// FromConfig builds a Source: fixed wins over a live URL, and with neither
// configured the simulated source is used.
func FromConfig(cfg Config, logger *slog.Logger) Source {
	switch {
	case cfg.Fixed > 0:
		return NewFixedSource(cfg.Fixed)
	case cfg.URL != "":
		return NewHTTPSource(cfg.URL, cfg.Token, cfg.Timeout, logger)
	default:
		return NewSimulatedSource()
	}
}

// FixedSource always returns the same intensity. Useful for demos and tests.
type FixedSource struct {
	value int
}

// NewFixedSource creates a source pinned to value.
func NewFixedSource(value int) *FixedSource {
	return &FixedSource{value: value}
}

// Read returns the fixed intensity.
func (s *FixedSource) Read(ctx context.Context) (int, error) {
	return s.value, nil
}

// SimulatedSource returns a uniformly random intensity in [min, max].
type SimulatedSource struct {
	min, max int
	rng      *rand.Rand
}

// NewSimulatedSource creates the default simulated source, 100..600 gCO2/kWh.
func NewSimulatedSource() *SimulatedSource {
	return NewSimulatedSourceRange(100, 600)
}

// NewSimulatedSourceRange creates a simulated source over [min, max].
func NewSimulatedSourceRange(min, max int) *SimulatedSource {
	return &SimulatedSource{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Read returns a random intensity in the configured range.
func (s *SimulatedSource) Read(ctx context.Context) (int, error) {
	return s.min + s.rng.Intn(s.max-s.min+1), nil
}

// HTTPSource reads live intensity from an external API returning a JSON body
// with a carbonIntensity field, e.g. Electricity Maps.
type HTTPSource struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSource creates a live source. timeout <= 0 defaults to 10s.
func NewHTTPSource(url, token string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "carbon"),
	}
}

// Read fetches and parses one intensity reading.
func (s *HTTPSource) Read(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("carbon request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("auth-token", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("carbon fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("carbon fetch: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		CarbonIntensity float64 `json:"carbonIntensity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("carbon decode: %w", err)
	}

	ci := int(body.CarbonIntensity)
	s.logger.Debug("carbon reading", "intensity", ci)
	return ci, nil
}

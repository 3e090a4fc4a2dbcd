package ontology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultOLSBaseURL is the EBI Ontology Lookup Service.
const DefaultOLSBaseURL = "https://www.ebi.ac.uk/ols4"

// OLSConfig configures an OLSClient.
type OLSConfig struct {
	BaseURL string
	// Ontology restricts Annotate to one ontology (e.g. "go", "hp"). Empty searches all.
	Ontology   string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	MaxRetries int
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	Logger           *slog.Logger
}

// OLSClient queries the Ontology Lookup Service over HTTP.
type OLSClient struct {
	baseURL    string
	ontology   string
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

type olsTermsResponse struct {
	Embedded struct {
		Terms []struct {
			OBOID string `json:"obo_id"`
			Label string `json:"label"`
		} `json:"terms"`
	} `json:"_embedded"`
}

type olsSearchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			OBOID string `json:"obo_id"`
			Label string `json:"label"`
		} `json:"docs"`
	} `json:"response"`
}

// httpStatusError is a non-2xx response.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ols returned status %d: %s", e.StatusCode, e.Body)
}

// NewOLSClient creates a new OLS client.
func NewOLSClient(cfg OLSConfig) *OLSClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOLSBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("ontology_client", "ols")

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ols",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &OLSClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ontology:   strings.ToLower(cfg.Ontology),
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		breaker:    breaker,
		logger:     logger,
	}
}

// Label implements Labeler.
func (c *OLSClient) Label(ctx context.Context, id string) (string, error) {
	q := url.Values{}
	q.Set("obo_id", id)

	var resp olsTermsResponse
	if err := c.get(ctx, "/api/terms", q, &resp); err != nil {
		return "", err
	}
	for _, t := range resp.Embedded.Terms {
		if t.Label != "" {
			return t.Label, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Annotate implements Annotator with an exact-match search.
func (c *OLSClient) Annotate(ctx context.Context, text string) ([]Term, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("q", text)
	q.Set("exact", "true")
	q.Set("rows", "5")
	if c.ontology != "" {
		q.Set("ontology", c.ontology)
	}

	var resp olsSearchResponse
	if err := c.get(ctx, "/api/search", q, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	terms := make([]Term, 0, len(resp.Response.Docs))
	for _, d := range resp.Response.Docs {
		if d.OBOID == "" {
			continue
		}
		terms = append(terms, Term{ID: d.OBOID, Label: d.Label})
	}
	return terms, nil
}

// State returns the circuit breaker state.
func (c *OLSClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *OLSClient) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + q.Encode()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, retry.Do(
			func() error {
				return c.fetch(ctx, endpoint, out)
			},
			retry.Context(ctx),
			retry.Attempts(uint(c.maxRetries)),
			retry.Delay(500*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(shouldRetry),
			retry.OnRetry(func(n uint, err error) {
				c.logger.Debug("retrying ols request", "attempt", n+1, "error", err)
			}),
		)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("ols unavailable: %w", err)
		}
		return err
	}
	return nil
}

func (c *OLSClient) fetch(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ols response: %w", err)
	}
	return nil
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

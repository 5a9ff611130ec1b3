package exchange

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// restClient wraps a venue's public REST API with a request rate limit and
// a circuit breaker, so a degraded venue cannot starve the streamers that
// share it.
type restClient struct {
	venue   string
	http    *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newRestClient(venue, baseURL string, timeout time.Duration, rps float64) *restClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	settings := gobreaker.Settings{
		Name:     venue,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &restClient{
		venue:   venue,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// getJSON issues a rate-limited GET through the breaker and decodes the
// response into out. Failures come back as *AdapterError.
func (c *restClient) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &AdapterError{Venue: c.venue, Op: "GET " + path, Err: err}
	}
	_, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(out).
			Get(path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil, nil
	})
	if err != nil {
		return &AdapterError{Venue: c.venue, Op: "GET " + path, Err: err}
	}
	return nil
}

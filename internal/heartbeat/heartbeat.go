// Package heartbeat implements the two directory/heartbeat HTTP
// collaborators described in §4.5: periodic POSTs that keep a server
// entry alive in a public directory, each behind the same abstract
// build/beat/delete contract.
package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Cadence is the interval at which the Hub attempts a beat absent a
// dirty-flag trigger.
const Cadence = 40 * time.Second

// retryMax and retryBackoff match §4.5's "retry up to 5 times with a
// 2-second backoff for non-200 responses".
const retryMax = 5

var retryBackoff = 2 * time.Second

// Status is the current server identity and player roster snapshot a
// Client assembles a request body from.
type Status struct {
	Name       string
	MOTD       string
	Port       int
	Public     bool
	OnlineMode bool
	Players    int
	MaxPlayers int
	Names      []string // MineOnline only
}

// Client is the abstract contract both directory collaborators
// satisfy: assemble a request (Build), send it with retry (Beat), and
// deregister on shutdown (Delete).
type Client interface {
	// Build assembles the next request body from status. It is safe
	// to call before every Beat.
	Build(status Status)
	// Beat sends the built request, retrying on non-200 responses
	// (a 204 is not retried).
	Beat() error
	// Delete deregisters the server entry, if one exists.
	Delete() error
}

// newRetryableClient builds the shared HTTP client used by both
// collaborators: go-retryablehttp configured for a fixed 2-second
// backoff and at most 5 retries after the first attempt, rather than a
// hand-rolled for/time.Sleep retry loop. Any response other than 200
// is retried, except 204, which a MineOnline delete answers with.
func newRetryableClient(log *logrus.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = retryBackoff
	c.RetryWaitMax = retryBackoff
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil || ctx.Err() != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent, nil
	}
	c.Logger = nil // the Hub/session logger covers this at call sites
	c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	return c
}

// mutexClient wraps a Client behind a mutex so the Hub and the
// periodic heartbeat goroutine can share one instance safely, per §5.
type mutexClient struct {
	mu sync.Mutex
	c  Client
}

// NewSynchronized wraps c so its methods are safe for concurrent use.
func NewSynchronized(c Client) Client {
	return &mutexClient{c: c}
}

func (m *mutexClient) Build(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Build(status)
}

func (m *mutexClient) Beat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Beat()
}

func (m *mutexClient) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Delete()
}

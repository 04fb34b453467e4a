package vocab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/wordmine/wordmine/internal/errs"
)

// SnapshotSource supplies the raw snapshot document. The canonical source is
// a pre-exported file; a graph exporter endpoint serves as optional fallback
// when the file is absent.
type SnapshotSource interface {
	// Fetch returns the snapshot JSON document.
	Fetch(ctx context.Context) ([]byte, error)

	// Name identifies the source for logs and errors.
	Name() string
}

// FileSource reads the snapshot from local disk.
type FileSource struct {
	Path string
}

// Fetch reads the snapshot file.
func (f *FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("snapshot file %s", f.Path)
		}
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", f.Path, err)
	}
	return data, nil
}

// Name identifies the source for logs and errors.
func (f *FileSource) Name() string { return "file:" + f.Path }

// GraphSource fetches the snapshot export from a graph-database exporter
// endpoint. Calls run behind a circuit breaker so a flapping exporter fails
// fast instead of stalling startup retries.
type GraphSource struct {
	URL     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewGraphSource builds a GraphSource with a breaker tuned for a slow,
// occasionally-down exporter.
func NewGraphSource(url string, timeout time.Duration) *GraphSource {
	settings := gobreaker.Settings{
		Name:        "vocab-graph-export",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Graph export breaker state changed")
		},
	}
	return &GraphSource{
		URL:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch downloads the snapshot export, failing fast while the breaker is open.
func (g *GraphSource) Fetch(ctx context.Context) ([]byte, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build graph export request: %w", err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("graph export request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("graph export returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read graph export body: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, errs.ExternalUnavailable("graph export %s: %v", g.URL, err)
	}
	return result.([]byte), nil
}

// Name identifies the source for logs and errors.
func (g *GraphSource) Name() string { return "graph:" + g.URL }

// Resolve loads the snapshot from the primary source, falling back to the
// secondary when the primary is absent. A missing primary with no fallback
// configured is a hard failure.
func Resolve(ctx context.Context, primary SnapshotSource, fallback SnapshotSource) ([]byte, string, error) {
	data, err := primary.Fetch(ctx)
	if err == nil {
		return data, primary.Name(), nil
	}
	if fallback == nil {
		return nil, "", fmt.Errorf("snapshot unavailable from %s and no fallback configured: %w", primary.Name(), err)
	}
	log.Warn().Err(err).Str("source", primary.Name()).
		Str("fallback", fallback.Name()).
		Msg("Primary snapshot source unavailable, trying fallback")

	data, ferr := fallback.Fetch(ctx)
	if ferr != nil {
		return nil, "", fmt.Errorf("snapshot unavailable from %s (%v) and fallback %s: %w", primary.Name(), err, fallback.Name(), ferr)
	}
	return data, fallback.Name(), nil
}

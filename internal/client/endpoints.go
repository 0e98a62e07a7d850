package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

var ErrNoEndpoint = errors.New("no reachable endpoint")

// SelectEndpoint probes candidate base URLs and returns the first live
// one. Candidates whose scheme matches preferScheme are tried first, so a
// page served over TLS never ends up on a plain endpoint only to be
// rejected as mixed content. Each probe hits /healthz bounded by a
// timeout; an unreachable endpoint just moves selection to the next one.
func SelectEndpoint(ctx context.Context, candidates []string, preferScheme string, hc *http.Client) (string, error) {
	if hc == nil {
		hc = &http.Client{Timeout: probeTimeout}
	}

	ordered := make([]string, len(candidates))
	copy(ordered, candidates)
	if preferScheme != "" {
		sort.SliceStable(ordered, func(i, j int) bool {
			return strings.HasPrefix(ordered[i], preferScheme+"://") &&
				!strings.HasPrefix(ordered[j], preferScheme+"://")
		})
	}

	var lastErr error
	for _, base := range ordered {
		if err := probe(ctx, hc, base); err != nil {
			lastErr = err
			continue
		}
		return base, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNoEndpoint, lastErr)
	}
	return "", ErrNoEndpoint
}

func probe(ctx context.Context, hc *http.Client, base string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", base, resp.StatusCode)
	}
	return nil
}

// signalURL converts a selected http(s) base into the ws(s) URL of the
// signaling endpoint.
func signalURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

// Package replay issues single HTTP exchanges against the live endpoint,
// pacing them with a shared leaky-bucket allowance. Ordinary transport
// failures (DNS, connect, TLS, timeout) are captured into the returned
// snapshot instead of being raised; the caller treats an unhealthy
// snapshot as "not equivalent" and moves on.
package replay

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/pkg/har"
)

// Client is the sole network-touching component of the minimizer.
type Client struct {
	cfg        config.Client
	httpClient *http.Client
	limiter    *limiter

	// probes memoizes snapshots by request hash when the (off by default)
	// memoize_probes policy is set. Reduction re-tests identical
	// remainders after granularity changes; against a stateless endpoint
	// those probes are free.
	probes *lru.Cache[string, *har.ResponseSnapshot]
}

// New builds a client from the transport policy.
func New(cfg config.Client) (*Client, error) {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: transport,
		},
		limiter: newLimiter(cfg.RequestsPerSecond),
	}

	if cfg.MemoizeProbes {
		size := cfg.ProbeCacheSize
		if size <= 0 {
			size = 512
		}
		cache, err := lru.New[string, *har.ResponseSnapshot](size)
		if err != nil {
			return nil, err
		}
		c.probes = cache
	}
	return c, nil
}

// Exchange sends one request built from the record with the given header
// and body overrides. A nil body override sends the record's original
// body. The returned snapshot is never nil.
func (c *Client) Exchange(ctx context.Context, rec *har.RequestRecord, headers har.Headers, body *string) *har.ResponseSnapshot {
	payload := body
	if payload == nil {
		payload = rec.Body
	}

	var key string
	if c.probes != nil {
		key = probeKey(rec.Method, rec.URL, headers, payload)
		if snap, ok := c.probes.Get(key); ok {
			return snap
		}
	}

	c.limiter.wait()

	snap := c.send(ctx, rec, headers, payload)
	if c.probes != nil && snap.Healthy() {
		c.probes.Add(key, snap)
	}
	return snap
}

func (c *Client) send(ctx context.Context, rec *har.RequestRecord, headers har.Headers, payload *string) *har.ResponseSnapshot {
	start := time.Now()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = strings.NewReader(*payload)
	}
	req, err := http.NewRequestWithContext(ctx, rec.Method, rec.URL, bodyReader)
	if err != nil {
		return &har.ResponseSnapshot{Error: err.Error(), Elapsed: time.Since(start)}
	}

	for _, h := range headers {
		// The Host header is a request property in net/http, not a map
		// entry; everything else is added as-is, duplicates preserved.
		if strings.EqualFold(h.Name, "host") {
			req.Host = h.Value
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("exchange failed",
			slog.String("method", rec.Method),
			slog.String("url", rec.URL),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return &har.ResponseSnapshot{Error: err.Error(), Elapsed: time.Since(start)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &har.ResponseSnapshot{Error: err.Error(), Elapsed: time.Since(start)}
	}

	body := string(raw)
	status := resp.StatusCode
	snap := &har.ResponseSnapshot{
		Status:  &status,
		Body:    &body,
		Elapsed: time.Since(start),
		Headers: resp.Header.Clone(),
	}

	slog.Debug("exchange completed",
		slog.String("method", rec.Method),
		slog.String("url", rec.URL),
		slog.Int("status", status),
		slog.Int("bytes", len(body)),
		slog.Int64("duration_ms", snap.Elapsed.Milliseconds()),
	)
	return snap
}

// probeKey hashes everything that distinguishes one probe from another.
func probeKey(method, rawURL string, headers har.Headers, payload *string) string {
	h := sha256.New()
	io.WriteString(h, method)
	io.WriteString(h, "\x00")
	io.WriteString(h, rawURL)
	for _, hdr := range headers {
		io.WriteString(h, "\x00")
		io.WriteString(h, hdr.Name)
		io.WriteString(h, "\x01")
		io.WriteString(h, hdr.Value)
	}
	io.WriteString(h, "\x02")
	if payload != nil {
		io.WriteString(h, *payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}

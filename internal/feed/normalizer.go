package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; feedsentinel/1.0; +https://github.com/ppiankov/feedsentinel)"

	// maxBodySize caps how much of a response is buffered per fetch.
	maxBodySize = 10 << 20
)

// Normalizer detects a payload's wire format, picks a capable adapter, and
// produces canonical items. It performs the network fetch but never touches
// health bookkeeping; feeding outcomes back to the registry is the caller's
// job, which keeps this component testable independent of health tracking.
type Normalizer struct {
	client    *http.Client
	userAgent string
	adapters  []Adapter // fixed priority order: syndication, json, html
}

// NewNormalizer wires an HTTP client and User-Agent; nil and empty values
// fall back to defaults.
func NewNormalizer(client *http.Client, userAgent string) *Normalizer {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Normalizer{
		client:    client,
		userAgent: userAgent,
		adapters: []Adapter{
			&SyndicationAdapter{},
			&JSONAdapter{},
			&HTMLAdapter{},
		},
	}
}

// Detect classifies the payload, combining the hint with sniffing.
func (n *Normalizer) Detect(content []byte, hint string) ContentType {
	return Detect(content, hint)
}

// Parse picks an adapter for the payload and delegates to it. Selection is
// two-pass: first an adapter whose declared formats include the detected
// type and whose predicate accepts the payload, then any adapter whose
// predicate alone accepts it. A payload no adapter accepts yields a failure
// result rather than an error; the caller decides severity.
func (n *Normalizer) Parse(content []byte, src Source, hint string) *ParseResult {
	detected := Detect(content, hint)

	adapter := n.selectAdapter(content, hint, detected)
	if adapter == nil {
		return &ParseResult{
			ContentType: detected,
			Error:       fmt.Sprintf("no adapter accepts content type %q", detected),
		}
	}

	res, err := adapter.Parse(content, src)
	if err != nil {
		return &ParseResult{
			ContentType: detected,
			Error:       fmt.Sprintf("%s: %v", adapter.Name(), err),
		}
	}
	return res
}

func (n *Normalizer) selectAdapter(content []byte, hint string, detected ContentType) Adapter {
	for _, a := range n.adapters {
		if slices.Contains(a.Formats(), detected) && a.CanParse(content, hint) {
			return a
		}
	}
	for _, a := range n.adapters {
		if a.CanParse(content, hint) {
			return a
		}
	}
	return nil
}

// FetchAndParse downloads the source's URL and normalizes the response.
// Latency is measured regardless of outcome. Transport failures (network
// errors, timeouts, non-2xx statuses) return an error alongside a failure
// result; the caller reports the outcome to the health registry.
func (n *Normalizer) FetchAndParse(ctx context.Context, src Source) (*ParseResult, time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		err = fmt.Errorf("build request %s: %w", src.URL, err)
		return failureResult(err), time.Since(start), err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		err = fmt.Errorf("fetch %s: %w", src.URL, err)
		return failureResult(err), time.Since(start), err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetch %s: HTTP %d", src.URL, resp.StatusCode)
		return failureResult(err), time.Since(start), err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		err = fmt.Errorf("read %s: %w", src.URL, err)
		return failureResult(err), time.Since(start), err
	}

	// A declared source type beats the transport header; "auto" defers to it.
	hint := src.Type
	if hint == "" || hint == "auto" {
		hint = resp.Header.Get("Content-Type")
	}

	return n.Parse(body, src, hint), time.Since(start), nil
}

func failureResult(err error) *ParseResult {
	return &ParseResult{ContentType: TypeUnknown, Error: err.Error()}
}

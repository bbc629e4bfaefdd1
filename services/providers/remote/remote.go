package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/lrc"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/ttml"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the remote provider
	ProviderName = "remote"

	defaultTimeout = 10 * time.Second
	userAgent      = "lyrics-sync-go/1.0"

	// maxBodyBytes bounds how much of an upstream response is read
	maxBodyBytes = 4 << 20
)

// Response is the upstream payload. Servers answer with TTML (better-lyrics style)
// or LRC text (lrclib style); the richest field present wins.
type Response struct {
	TTML         string `json:"ttml"`
	SyncedLyrics string `json:"syncedLyrics"`
	PlainLyrics  string `json:"plainLyrics"`
	Instrumental bool   `json:"instrumental"`
}

// ErrUpstream marks failures that count against the circuit breaker
var ErrUpstream = errors.New("upstream failure")

// RemoteProvider fetches lyrics from an HTTP lyrics API
type RemoteProvider struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewProvider creates a remote provider. An empty baseURL disables it.
func NewProvider(baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker) *RemoteProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{Name: "Remote"})
	}
	return &RemoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// Name returns the provider identifier
func (p *RemoteProvider) Name() string {
	return ProviderName
}

// Breaker exposes the provider's circuit breaker for monitoring
func (p *RemoteProvider) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}

// FetchLyrics queries the upstream API
func (p *RemoteProvider) FetchLyrics(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("%s disabled: %w", ProviderName, lyrics.ErrNotFound)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%s needs a title: %w", ProviderName, lyrics.ErrNotFound)
	}

	var payload *Response
	err := p.breaker.Execute(func() error {
		var fetchErr error
		payload, fetchErr = p.fetch(ctx, req)
		return fetchErr
	}, func(err error) bool {
		return errors.Is(err, ErrUpstream)
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.Warnf("%s Circuit open, skipping request (retry in %v)", logcolors.LogRemote, p.breaker.TimeUntilRetry().Round(time.Second))
		return nil, providers.NewProviderError(ProviderName, "circuit breaker open", err)
	}
	if err != nil {
		if errors.Is(err, lyrics.ErrNotFound) {
			return nil, err
		}
		return nil, providers.NewProviderError(ProviderName, "request failed", err)
	}

	return Decode(payload)
}

func (p *RemoteProvider) fetch(ctx context.Context, req providers.Request) (*Response, error) {
	params := url.Values{}
	params.Set("s", req.Title)
	if req.Artist != "" {
		params.Set("a", req.Artist)
	}
	if req.Album != "" {
		params.Set("al", req.Album)
	}
	if req.DurationMs > 0 {
		params.Set("d", strconv.FormatInt(req.DurationMs/1000, 10))
	}

	requestURL := p.baseURL + "/getLyrics?" + params.Encode()
	log.Debugf("%s GET %s", logcolors.LogRemote, requestURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// The caller giving up is not an upstream fault
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", ProviderName, lyrics.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	var payload Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}
	return &payload, nil
}

// Decode converts an upstream payload into a lyric document
func Decode(payload *Response) (*lyrics.Lyrics, error) {
	var (
		doc *lyrics.Lyrics
		err error
	)

	switch {
	case strings.TrimSpace(payload.TTML) != "":
		doc, err = ttml.Parse(payload.TTML)
	case strings.TrimSpace(payload.SyncedLyrics) != "":
		doc, err = lrc.Parse(lrc.Normalize(payload.SyncedLyrics))
	case strings.TrimSpace(payload.PlainLyrics) != "":
		doc = lrc.ParsePlain(payload.PlainLyrics)
	case payload.Instrumental:
		doc, err = lrc.Parse("[00:00.00]" + lrc.InstrumentalText)
	default:
		return nil, fmt.Errorf("%s: empty payload: %w", ProviderName, lyrics.ErrNotFound)
	}
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to parse lyrics", err)
	}

	if doc.IsEmpty() {
		return nil, fmt.Errorf("%s: blank lyrics: %w", ProviderName, lyrics.ErrNotFound)
	}
	doc.Source = ProviderName + ":" + doc.Source
	return doc, nil
}

var (
	defaultProvider *RemoteProvider
	defaultOnce     sync.Once
)

// Default returns the configured provider registered with the global registry
func Default() *RemoteProvider {
	defaultOnce.Do(func() {
		conf := config.Get()
		cooldown := time.Duration(conf.Configuration.CircuitBreakerCooldownSecs) * time.Second
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:      "Remote",
			Threshold: conf.Configuration.CircuitBreakerThreshold,
			Cooldown:  cooldown,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				log.Warnf("%s %s moved %s -> %s", logcolors.LogCircuitBreaker, name, from, to)
				switch {
				case to == circuitbreaker.StateOpen:
					notifier.PublishCircuitBreakerOpen(name, conf.Configuration.CircuitBreakerThreshold, cooldown)
				case to == circuitbreaker.StateClosed && from == circuitbreaker.StateHalfOpen:
					notifier.PublishCircuitBreakerRecovered(name)
				}
			},
			OnWarning: notifier.PublishHighFailureRate,
		})
		defaultProvider = NewProvider(
			conf.Configuration.RemoteBaseURL,
			time.Duration(conf.Configuration.RemoteTimeoutSecs)*time.Second,
			breaker,
		)
	})
	return defaultProvider
}

// init registers the remote provider with the global registry
func init() {
	providers.Register(Default())
}

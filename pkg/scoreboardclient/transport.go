// Package scoreboardclient keeps a viewer's copy of one event's scoreboard
// current. It prefers the server's SSE push channel and falls back to
// polling the JSON endpoint when push cannot be established or keeps
// failing.
package scoreboardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	scoreboardtypes "github.com/Black-And-White-Club/quiscore/pkg/types/scoreboard"
)

// Mode is the delivery channel currently feeding the view.
type Mode string

const (
	ModeDisconnected Mode = "disconnected"
	ModePush         Mode = "push"
	ModePull         Mode = "pull"
)

var (
	ErrAlreadyStarted = errors.New("scoreboard client: already started")
	ErrClosed         = errors.New("scoreboard client: closed")

	errConnectTimeout    = errors.New("push channel not established in time")
	errHeartbeatTimeout  = errors.New("push channel went silent")
	errStreamEnded       = errors.New("push channel closed by server")
	errStreamRefused     = errors.New("push channel refused by server")
	errFallbackRequested = errors.New("fallback to pull requested")
)

// State is what a viewer renders. Snapshot is nil until the first
// scoreboard arrives.
type State struct {
	Snapshot  *scoreboardtypes.Snapshot
	Mode      Mode
	Loading   bool
	LastError string
}

// Config configures a Transport. Zero durations select the defaults for the
// environment.
type Config struct {
	BaseURL    string
	EventID    string
	Production bool

	// HTTPClient must not set a Timeout, since push responses never end.
	HTTPClient *http.Client
	Logger     *slog.Logger

	ConnectTimeout       time.Duration
	PollInterval         time.Duration
	ReconnectDelay       time.Duration
	RequestTimeout       time.Duration
	HeartbeatTimeout     time.Duration
	MaxReconnectAttempts int

	// AcceptStale keeps snapshots older than the displayed one instead of
	// discarding them.
	AcceptStale bool

	// OnUpdate is called after every state change, never concurrently.
	OnUpdate func(State)
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
		if c.Production {
			c.ConnectTimeout = time.Second
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
		if c.Production {
			c.PollInterval = 5 * time.Second
		}
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 75 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Transport delivers scoreboard snapshots of one event to a viewer.
type Transport struct {
	cfg       Config
	logger    *slog.Logger
	snapURL   string
	streamURL string

	mu      sync.Mutex
	state   State
	started bool
	closed  bool
	cancel  context.CancelFunc

	notifyMu  sync.Mutex
	fallback  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New validates cfg and returns a disconnected Transport.
func New(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()

	eventID := strings.TrimSpace(cfg.EventID)
	if eventID == "" {
		return nil, errors.New("scoreboard client: event id is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("scoreboard client: invalid base url %q", cfg.BaseURL)
	}
	snapURL := base.JoinPath("api", "events", eventID, "scoreboard")

	return &Transport{
		cfg:       cfg,
		logger:    cfg.Logger.With(slog.String("event_id", eventID)),
		snapURL:   snapURL.String(),
		streamURL: snapURL.JoinPath("stream").String(),
		state:     State{Mode: ModeDisconnected},
		fallback:  make(chan struct{}, 1),
	}, nil
}

// State returns the current view.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start fetches the scoreboard once and then tries to establish push in
// the background. It does not block on the push channel.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrClosed
	case t.started:
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.update(func(s *State) { s.Loading = true })

	var fetchErr error
	snap, err := t.fetch(ctx)
	if err != nil {
		fetchErr = err
		t.logger.WarnContext(ctx, "Initial scoreboard fetch failed", slog.String("error", err.Error()))
	} else {
		t.apply(snap)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go t.run(ctx, fetchErr)
	return nil
}

// FallbackToPull abandons push and switches to polling. It has no effect in
// pull mode, before Start or after Close.
func (t *Transport) FallbackToPull() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.closed {
		return
	}
	select {
	case t.fallback <- struct{}{}:
	default:
	}
}

// Close stops every channel and waits for background work to finish. It is
// safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		cancel := t.cancel
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		t.wg.Wait()
		t.update(func(s *State) {
			s.Mode = ModeDisconnected
			s.Loading = false
		})
	})
	return nil
}

func (t *Transport) run(ctx context.Context, fetchErr error) {
	defer t.wg.Done()

	everUp := false
	failedReconnects := 0
	for {
		up, err := t.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errFallbackRequested) || errors.Is(err, errStreamRefused) {
			t.logger.InfoContext(ctx, "Switching to pull", slog.String("reason", err.Error()))
			break
		}

		if up {
			everUp = true
			failedReconnects = 0
		} else if everUp {
			failedReconnects++
		}

		if !everUp {
			t.logger.WarnContext(ctx, "Push unavailable, switching to pull", slog.String("error", err.Error()))
			if fetchErr != nil {
				t.update(func(s *State) { s.LastError = err.Error() })
			}
			break
		}
		if failedReconnects >= t.cfg.MaxReconnectAttempts {
			t.logger.WarnContext(ctx, "Push reconnects exhausted, switching to pull",
				slog.Int("attempts", failedReconnects),
				slog.String("error", err.Error()),
			)
			break
		}

		t.logger.InfoContext(ctx, "Push channel dropped, reconnecting",
			slog.Duration("delay", t.cfg.ReconnectDelay),
			slog.String("error", err.Error()),
		)
		if !t.wait(ctx, t.cfg.ReconnectDelay) {
			if ctx.Err() != nil {
				return
			}
			break
		}
	}

	t.poll(ctx)
}

// wait sleeps for d. It returns false when ctx ends or a fallback is
// requested first.
func (t *Transport) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.fallback:
		return false
	case <-timer.C:
		return true
	}
}

// stream runs one push connection until it ends. up reports whether the
// connection was established.
func (t *Transport) stream(ctx context.Context) (up bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fellBack, silent, timedOut atomic.Bool
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-t.fallback:
			fellBack.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()
	// The watcher may take a fallback request after the connection ended on
	// its own, so it must be finished before the outcome is decided.
	defer func() {
		cancel()
		<-watcherDone
		switch {
		case fellBack.Load():
			err = errFallbackRequested
		case silent.Load():
			err = errHeartbeatTimeout
		case timedOut.Load():
			err = errConnectTimeout
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.streamURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	connectTimer := time.AfterFunc(t.cfg.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	resp, err := t.cfg.HTTPClient.Do(req)
	if !connectTimer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		return false, errConnectTimeout
	}
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return false, errStreamRefused
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("push channel: unexpected status %d", resp.StatusCode)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/event-stream" {
		return false, fmt.Errorf("push channel: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	t.logger.InfoContext(ctx, "Push channel established")
	t.update(func(s *State) {
		s.Mode = ModePush
		s.Loading = false
		s.LastError = ""
	})

	watchdog := time.AfterFunc(t.cfg.HeartbeatTimeout, func() {
		silent.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	fr := newFrameReader(resp.Body, func() { watchdog.Reset(t.cfg.HeartbeatTimeout) })
	for {
		f, err := fr.next()
		if errors.Is(err, io.EOF) {
			return true, errStreamEnded
		}
		if err != nil {
			return true, err
		}
		if f.event != "" && f.event != "snapshot" {
			continue
		}

		var snap scoreboardtypes.Snapshot
		if err := json.Unmarshal([]byte(f.data), &snap); err != nil {
			t.logger.WarnContext(ctx, "Discarding undecodable push frame",
				slog.String("id", f.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.apply(&snap)
	}
}

// poll fetches on every tick until ctx ends. A failed poll surfaces its
// error and keeps the last snapshot.
func (t *Transport) poll(ctx context.Context) {
	t.update(func(s *State) { s.Mode = ModePull })

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		snap, err := t.fetch(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			t.logger.WarnContext(ctx, "Scoreboard poll failed", slog.String("error", err.Error()))
			t.update(func(s *State) {
				s.Loading = false
				s.LastError = err.Error()
			})
		default:
			t.apply(snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Transport) fetch(ctx context.Context) (*scoreboardtypes.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.snapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch scoreboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body scoreboardtypes.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			return nil, fmt.Errorf("fetch scoreboard: %s (status %d)", body.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("fetch scoreboard: status %d", resp.StatusCode)
	}

	var snap scoreboardtypes.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode scoreboard: %w", err)
	}
	return &snap, nil
}

// apply shows snap unless it is older than the displayed snapshot.
func (t *Transport) apply(snap *scoreboardtypes.Snapshot) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if shown := t.state.Snapshot; !t.cfg.AcceptStale && shown.Newer(snap) {
		t.mu.Unlock()
		t.logger.Debug("Discarding stale snapshot",
			slog.Time("displayed", shown.ComputedAt),
			slog.Time("received", snap.ComputedAt),
		)
		return
	}
	t.state.Snapshot = snap
	t.state.Loading = false
	t.state.LastError = ""
	state := t.state
	t.mu.Unlock()

	t.notify(state)
}

func (t *Transport) update(fn func(s *State)) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	fn(&t.state)
	state := t.state
	t.mu.Unlock()

	t.notify(state)
}

func (t *Transport) notify(state State) {
	if t.cfg.OnUpdate != nil {
		t.cfg.OnUpdate(state)
	}
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chatfeed/badges"
	"github.com/onnwee/chatfeed/emotes"
	"github.com/onnwee/chatfeed/irc"
	"github.com/onnwee/chatfeed/telemetry"
	"github.com/onnwee/chatfeed/transport"
)

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateJoined
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateJoined:
		return "joined"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	// ErrDestroyed is returned by Run and Init once Destroy was called.
	ErrDestroyed = errors.New("chat: session destroyed")
	// ErrRunning is returned by Run when the session is already running.
	ErrRunning = errors.New("chat: session already running")

	errServerReconnect = errors.New("server requested reconnect")
)

// Defaults applied by NewSession.
const (
	DefaultReconnectDelay     = time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultGlobalBadgeTimeout = 10 * time.Second

	inboundBuffer = 256
)

// ChannelResolver maps a channel login to its numeric id.
type ChannelResolver interface {
	GetUserID(ctx context.Context, login string) (string, error)
}

// CheerSource lists the cheer tiers usable in a channel.
type CheerSource interface {
	FetchCheers(ctx context.Context, channelID string) ([]CheerTier, error)
}

// Options configures a Session. Channel and Dialer are required; every
// registry is optional.
type Options struct {
	Channel      string
	Dialer       transport.Dialer
	Resolver     ChannelResolver
	Emotes       *emotes.Registry
	Badges       *badges.Registry
	NativeBadges *badges.TwitchBadges
	Cheers       CheerSource
	Notifier     Notifier
	Retention    int

	ShowBots     bool
	HideCommands bool
	ShowBadges   bool
	BlockedUsers []string

	ReconnectDelay     time.Duration
	ReconnectMaxDelay  time.Duration
	ConstantBackoff    bool
	GlobalBadgeTimeout time.Duration

	// Nick overrides the anonymous justinfan login.
	Nick   string
	Logger *slog.Logger
}

// Session is one anonymous chat connection to a single channel.
type Session struct {
	opts     Options
	channel  string
	nick     string
	logger   *slog.Logger
	store    *Store
	enricher *Enricher
	filter   Filter

	state     atomic.Int32
	channelID atomic.Value // string, "0" until known
	running   atomic.Bool
	destroyed atomic.Bool
	done      chan struct{}
	destroy   sync.Once

	// dispatchMu is held while a line is dispatched so Destroy can wait out
	// an in-flight dispatch before clearing the store.
	dispatchMu sync.Mutex

	connMu sync.Mutex
	conn   transport.Conn

	bg sync.WaitGroup
}

// NewSession validates opts and returns a Disconnected session.
func NewSession(opts Options) (*Session, error) {
	channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opts.Channel), "#"))
	if channel == "" {
		return nil, errors.New("chat: channel required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("chat: dialer required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReconnectMaxDelay < opts.ReconnectDelay {
		opts.ReconnectMaxDelay = max(DefaultReconnectMaxDelay, opts.ReconnectDelay)
	}
	if opts.GlobalBadgeTimeout <= 0 {
		opts.GlobalBadgeTimeout = DefaultGlobalBadgeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nick := opts.Nick
	if nick == "" {
		nick = fmt.Sprintf("justinfan%d", 10000+rand.IntN(90000))
	}

	// only assign non-nil registries so the enricher never sees a typed nil
	enricher := &Enricher{}
	if opts.Emotes != nil {
		enricher.Emotes = opts.Emotes
	}
	if opts.Badges != nil && opts.ShowBadges {
		enricher.Badges = opts.Badges
	}
	if opts.NativeBadges != nil {
		enricher.Native = opts.NativeBadges
	}

	s := &Session{
		opts:     opts,
		channel:  channel,
		nick:     nick,
		logger:   logger.With(slog.String("component", "chat"), slog.String("channel", channel)),
		store:    NewStore(channel, opts.Retention, opts.Notifier),
		enricher: enricher,
		filter:   NewFilter(opts.ShowBots, opts.HideCommands, opts.BlockedUsers),
		done:     make(chan struct{}),
	}
	s.channelID.Store("0")
	s.setState(StateDisconnected)
	return s, nil
}

// Channel returns the lowercase channel login.
func (s *Session) Channel() string { return s.channel }

// ChannelID returns the numeric channel id, or "0" while unknown.
func (s *Session) ChannelID() string { return s.channelID.Load().(string) }

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Store returns the session's message store.
func (s *Session) Store() *Store { return s.store }

// Enricher returns the session's enricher.
func (s *Session) Enricher() *Enricher { return s.enricher }

// setState records st unless the session is already destroyed, which is terminal.
func (s *Session) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateDestroyed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			break
		}
	}
	telemetry.SetSessionState(s.channel, int(st))
}

func (s *Session) setChannelID(id string) {
	if id == "" {
		return
	}
	s.channelID.Store(id)
}

// Init resolves the channel id and loads emotes, native badges, cheer tiers
// and (when badges are shown) the global third-party badge lists. Every
// step is best effort; Init only fails when the session was destroyed.
func (s *Session) Init(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}
	ctx, span := telemetry.StartSpan(ctx, "chatfeed/chat", "session.init", telemetry.ChannelAttr(s.channel))
	defer span.End()

	if s.opts.Resolver != nil {
		start := time.Now()
		id, err := s.opts.Resolver.GetUserID(ctx, s.channel)
		telemetry.ObserveSource("channel_id", time.Since(start), err)
		if err != nil {
			s.logger.Warn("could not resolve channel id; channel scoped sources limited", slog.Any("err", err))
		} else {
			s.setChannelID(id)
			s.logger.Info("resolved channel id", slog.String("channel_id", id))
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		s.refreshEmotes(ctx)
		return nil
	})
	g.Go(func() error {
		s.refreshNativeBadges(ctx)
		return nil
	})
	g.Go(func() error {
		s.refreshCheers(ctx)
		return nil
	})
	if s.opts.ShowBadges && s.opts.Badges != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, s.opts.GlobalBadgeTimeout)
			defer cancel()
			s.opts.Badges.LoadGlobalBadges(ctx)
			return nil
		})
	}
	_ = g.Wait()
	telemetry.SetSpanSuccess(span)
	s.logger.Info("session initialized", slog.Int("emotes", s.emoteCount()), slog.Int("cheer_prefixes", s.enricher.Cheers().Len()))
	return nil
}

// Refresh refetches emotes and native badges and drops the cached user
// badges, failed loads included.
func (s *Session) Refresh(ctx context.Context) {
	if s.opts.ShowBadges && s.opts.Badges != nil {
		s.opts.Badges.ClearAll()
	}
	var g errgroup.Group
	g.Go(func() error {
		s.refreshEmotes(ctx)
		return nil
	})
	g.Go(func() error {
		s.refreshNativeBadges(ctx)
		return nil
	})
	_ = g.Wait()
}

// refreshChannelScoped refetches the sources keyed by channel id.
func (s *Session) refreshChannelScoped(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		s.refreshEmotes(ctx)
		return nil
	})
	g.Go(func() error {
		s.refreshCheers(ctx)
		return nil
	})
	_ = g.Wait()
}

func (s *Session) emoteCount() int {
	if s.opts.Emotes == nil {
		return 0
	}
	return s.opts.Emotes.Len()
}

func (s *Session) refreshEmotes(ctx context.Context) {
	if s.opts.Emotes != nil {
		s.opts.Emotes.Refresh(ctx, s.channel, s.ChannelID())
	}
}

func (s *Session) refreshNativeBadges(ctx context.Context) {
	if s.opts.NativeBadges != nil {
		s.opts.NativeBadges.Refresh(ctx, s.channel)
	}
}

func (s *Session) refreshCheers(ctx context.Context) {
	if s.opts.Cheers == nil {
		return
	}
	start := time.Now()
	tiers, err := s.opts.Cheers.FetchCheers(ctx, s.ChannelID())
	telemetry.ObserveSource("cheers", time.Since(start), err)
	if err != nil {
		s.logger.Warn("cheer tiers unavailable", slog.Any("err", err))
		return
	}
	s.enricher.SetCheers(tiers)
}

// Run connects and processes lines until ctx is canceled or Destroy is
// called, reconnecting after every transport failure. It returns nil after
// Destroy and ctx.Err() on cancellation. Background work started by the
// session has finished when Run returns.
func (s *Session) Run(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)
	// registered before cancel so background work sees cancellation first
	defer s.bg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := s.newBackOff()
	attempt := 0
	for {
		joined, err := s.runConnection(ctx)
		if s.destroyed.Load() {
			return nil
		}
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if joined {
			bo.Reset()
			attempt = 0
		}
		attempt++
		delay := bo.NextBackOff()
		if errors.Is(err, errServerReconnect) {
			delay = 0
		}
		telemetry.IncReconnect()
		s.logger.Warn("chat connection lost; reconnecting",
			slog.Any("err", err), slog.Int("attempt", attempt), slog.Duration("delay", delay))

		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				if s.destroyed.Load() {
					return nil
				}
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}

func (s *Session) newBackOff() backoff.BackOff {
	if s.opts.ConstantBackoff {
		return backoff.NewConstantBackOff(s.opts.ReconnectDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.ReconnectDelay
	b.MaxInterval = s.opts.ReconnectMaxDelay
	b.Reset()
	return b
}

// runConnection runs one connection from dial to loss. joined reports
// whether the channel join was acknowledged on this connection.
func (s *Session) runConnection(ctx context.Context) (joined bool, err error) {
	s.setState(StateConnecting)
	conn, err := s.opts.Dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	if !s.attach(conn) {
		_ = conn.Close()
		return false, ErrDestroyed
	}
	defer s.detach(conn)

	s.setState(StateHandshaking)
	if err := s.handshake(conn); err != nil {
		return false, fmt.Errorf("handshake: %w", err)
	}

	readCtx, stopReader := context.WithCancel(ctx)
	lines := make(chan string, inboundBuffer)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(lines)
		for {
			line, err := conn.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-readCtx.Done():
				return
			}
		}
	}()
	defer func() {
		stopReader()
		_ = conn.Close()
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return joined, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return joined, err
				default:
					return joined, ctx.Err()
				}
			}
			if err := s.handleLine(ctx, conn, line); err != nil {
				return joined, err
			}
			if s.State() == StateJoined {
				joined = true
			}
		}
	}
}

func (s *Session) attach(conn transport.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.destroyed.Load() {
		return false
	}
	s.conn = conn
	return true
}

func (s *Session) detach(conn transport.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

func (s *Session) handshake(conn transport.Conn) error {
	for _, line := range []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
		"PASS oauth:",
		"NICK " + s.nick,
		"JOIN #" + s.channel,
	} {
		if err := conn.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleLine(ctx context.Context, conn transport.Conn, line string) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.destroyed.Load() {
		return ErrDestroyed
	}
	telemetry.IncLines()
	ev, ok := irc.Parse(line)
	if !ok {
		telemetry.IncParseFailure()
		s.logger.Debug("dropping malformed line", slog.String("line", line))
		return nil
	}
	return s.dispatch(ctx, conn, ev)
}

// goBackground runs fn on a goroutine that Run waits for before returning.
// It must only be called from the Run goroutine.
func (s *Session) goBackground(ctx context.Context, fn func(context.Context)) {
	if s.destroyed.Load() {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(ctx)
	}()
}

// Destroy closes the connection and stops the session for good. Lines
// already read but not yet dispatched are discarded. Destroy is idempotent.
func (s *Session) Destroy() {
	s.destroy.Do(func() {
		s.destroyed.Store(true)
		close(s.done)

		s.connMu.Lock()
		conn := s.conn
		s.conn = nil
		s.connMu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		s.dispatchMu.Lock()
		s.setState(StateDestroyed)
		s.store.Clear()
		s.dispatchMu.Unlock()
		s.logger.Info("session destroyed")
	})
}

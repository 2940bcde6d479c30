package daemon

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/backend"
	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/clock"
	"github.com/facilitydesk/chatsync/internal/config"
	"github.com/facilitydesk/chatsync/internal/conn"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/lock"
	"github.com/facilitydesk/chatsync/internal/logging"
	"github.com/facilitydesk/chatsync/internal/outbox"
	"github.com/facilitydesk/chatsync/internal/profile"
	"github.com/facilitydesk/chatsync/internal/store"
	intsync "github.com/facilitydesk/chatsync/internal/sync"
	"github.com/facilitydesk/chatsync/internal/typing"
	"github.com/facilitydesk/chatsync/internal/wire"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default

	// Optional overrides for tests. Nil means: load from the profile
	// directory, build the real logger, dial a real websocket, use the wall clock.
	Config     *config.Profile
	Logger     *zap.Logger
	Dial       conn.DialFunc
	HTTPClient *http.Client
	Clock      clock.Clock
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideClock,
			provideLock,
			provideConnManager,
			provideHistoryClient,
			provideStore,
			provideIndex,
			provideSender,
			provideTypingSignal,
			provideTypingTracker,
			provideCoordinator,
			provideChatSyncService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Profile, error) {
	if p.Config != nil {
		if err := p.Config.Validate(); err != nil {
			return nil, err
		}
		return p.Config, nil
	}
	return profile.Load(p.ProfileName)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger.With(zap.String("profile", p.ProfileName)), nil
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideClock(p Params) clock.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clock.Real()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideConnManager(p Params, cfg *config.Profile, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *conn.Manager {
	return conn.New(conn.Config{
		URL:               cfg.SocketURL,
		Token:             cfg.Token,
		MaxAttempts:       cfg.Connection.MaxAttempts,
		BaseDelay:         cfg.Connection.BaseDelay.Duration,
		HeartbeatInterval: cfg.Connection.HeartbeatInterval.Duration,
		DialTimeout:       cfg.Connection.DialTimeout.Duration,
		WriteTimeout:      cfg.Connection.WriteTimeout.Duration,
		Location:          cfg.Location(),
	}, p.Dial, clk, b, logger.Named("conn"))
}

func provideHistoryClient(p Params, cfg *config.Profile, logger *zap.Logger) *backend.HistoryClient {
	return backend.NewHistoryClient(backend.Config{
		BaseURL:   cfg.APIBaseURL,
		Token:     cfg.Token,
		Operation: cfg.HistoryOperation,
		Location:  cfg.Location(),
	}, p.HTTPClient, logger.Named("history"))
}

func provideStore(cfg *config.Profile, clk clock.Clock) *store.Store {
	return store.New(clk, store.Options{
		AliasGrace:  cfg.Sync.AliasGrace.Duration,
		MatchWindow: cfg.Sync.MatchWindow.Duration,
	})
}

func provideIndex(s *store.Store, cfg *config.Profile) *index.Index {
	return index.New(s, cfg.SelfID)
}

func provideSender(s *store.Store, mgr *conn.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(s, mgr, b, logger.Named("outbox"))
}

func provideTypingSignal(cfg *config.Profile, clk clock.Clock, mgr *conn.Manager, b *bus.Bus, logger *zap.Logger) *typing.Signal {
	emit := func(conversationID string, active bool) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.WriteTimeout.Duration)
		defer cancel()
		if err := mgr.SendFrame(ctx, wire.NewTyping(cfg.SelfID, conversationID, active)); err != nil {
			logger.Debug("typing frame not sent", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return typing.NewSignal(clk, emit, b, cfg.Typing.Debounce.Duration, cfg.Typing.Clear.Duration)
}

func provideTypingTracker(cfg *config.Profile, clk clock.Clock, b *bus.Bus) *typing.Tracker {
	return typing.NewTracker(clk, b, cfg.Typing.Clear.Duration)
}

func provideCoordinator(
	cfg *config.Profile,
	mgr *conn.Manager,
	history *backend.HistoryClient,
	s *store.Store,
	idx *index.Index,
	sender *outbox.Sender,
	sig *typing.Signal,
	tracker *typing.Tracker,
	clk clock.Clock,
	b *bus.Bus,
	logger *zap.Logger,
) *intsync.Coordinator {
	return intsync.New(intsync.Deps{
		Conn:    mgr,
		History: history,
		Store:   s,
		Index:   idx,
		Outbox:  sender,
		Typing:  sig,
		Remote:  tracker,
		Clock:   clk,
		Bus:     b,
		Logger:  logger.Named("sync"),
	}, intsync.Options{RefreshInterval: cfg.Sync.RefreshInterval.Duration})
}

func provideChatSyncService(p Params, coord *intsync.Coordinator, b *bus.Bus, logger *zap.Logger) *api.ChatSyncService {
	return api.NewChatSyncService(p.ProfileName, coord, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Profile, srv *Server, lk *lock.Lock, coord *intsync.Coordinator, mgr *conn.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The coordinator outlives the start context.
			if err := coord.Start(context.Background(), cfg.SelfID); err != nil {
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			coord.Stop()
			if err := mgr.Close(); err != nil {
				logger.Warn("error closing connection", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

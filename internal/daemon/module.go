package daemon

import (
	"context"

	"github.com/matheus3301/chatlist/internal/api"
	"github.com/matheus3301/chatlist/internal/bus"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/config"
	"github.com/matheus3301/chatlist/internal/lock"
	"github.com/matheus3301/chatlist/internal/logging"
	"github.com/matheus3301/chatlist/internal/outbox"
	"github.com/matheus3301/chatlist/internal/remote"
	"github.com/matheus3301/chatlist/internal/session"
	"github.com/matheus3301/chatlist/internal/status"
	"github.com/matheus3301/chatlist/internal/store"
	intsync "github.com/matheus3301/chatlist/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			provideRunner,
			provideSender,
			provideChatListService,
			provideSessionService,
			provideGroupService,
			provideMessageService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// process that owns the session.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(db *store.DB, logger *zap.Logger) *remote.Local {
	return remote.NewLocal(db, logger.Named("remote"))
}

func provideRunner(svc *remote.Local, b *bus.Bus, m *status.Machine, cfg *config.Config, logger *zap.Logger) *intsync.Runner {
	opts := chatlist.Options{
		AttachmentText:  cfg.ChatList.AttachmentText,
		GroupNameFormat: cfg.ChatList.GroupNameFormat,
	}
	return intsync.NewRunner(svc, b, m, opts, logger)
}

func provideSender(db *store.DB, svc *remote.Local, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, svc, b, outbox.Options{
		PollInterval:   cfg.Outbox.PollInterval(),
		SendsPerSecond: cfg.Outbox.SendsPerSecond,
	}, logger.Named("outbox"))
}

func provideChatListService(runner *intsync.Runner, b *bus.Bus, logger *zap.Logger) *api.ChatListService {
	return api.NewChatListService(runner, b, logger)
}

func provideSessionService(p Params, m *status.Machine, runner *intsync.Runner, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, runner, db)
}

func provideGroupService(svc *remote.Local) *api.GroupService {
	return api.NewGroupService(svc)
}

func provideMessageService(db *store.DB, runner *intsync.Runner) *api.MessageService {
	return api.NewMessageService(db, runner)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, chatListSvc *api.ChatListService, lk *lock.Lock, db *store.DB, runner *intsync.Runner, sender *outbox.Sender, machine *status.Machine, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Start outbox sender.
			sender.Start(context.Background())

			autoSignIn(ctx, runner, machine, cfg.Profile, logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			// Watch streams never end on their own.
			chatListSvc.Close()
			runner.SignOut()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// autoSignIn signs in the configured profile. Without one, or when sign-in
// fails, the daemon stays up signed out so a client can sign in later.
func autoSignIn(ctx context.Context, runner *intsync.Runner, machine *status.Machine, profile config.Profile, logger *zap.Logger) {
	if profile.UserID == "" {
		logger.Info("no profile configured, waiting for sign in")
		_ = machine.Transition(status.SignedOut)
		return
	}
	if err := session.ValidateUserID(profile.UserID); err != nil {
		logger.Error("invalid profile user id", zap.Error(err))
		_ = machine.Transition(status.SignedOut)
		return
	}
	if err := runner.SignIn(ctx, profile.UserID, profile.DisplayName); err != nil {
		logger.Error("auto sign in failed", zap.Error(err), zap.String("user_id", profile.UserID))
		machine.Reset()
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"contentgate/internal/bootstrap/config"
	"contentgate/internal/bootstrap/database"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	cacheinfra "contentgate/internal/infrastructure/cache"
	"contentgate/internal/infrastructure/notify"
	sqliterepo "contentgate/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "contentgate/internal/infrastructure/persistence/sqlite/uow"
	"contentgate/internal/infrastructure/source"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewStore,
			fx.As(new(ports.Store)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideNotifier),
	fx.Provide(provideSources),
	fx.Provide(provideWorkflowProfile),
	fx.Provide(provideEngineSeed),
	fx.Provide(approval.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithComponent(p.Ctx, "bootstrap.fx")
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithComponent(ctx, "bootstrap.fx")

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

// provideNotifier picks the approval-request backend from notify.backend.
func provideNotifier(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.Notifier, error) {
	n, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	logging.Info(logging.WithComponent(ctx, "bootstrap.fx"), "notifier ready", slog.String("backend", n.Name()))

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return n.Close()
		},
	})
	return n, nil
}

func newNotifier(cfg config.Config) (ports.Notifier, error) {
	var (
		n   ports.Notifier
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Notify.Backend)) {
	case "", "none":
		return notify.Noop{}, nil
	case "ntfy":
		n, err = notify.NewNtfy(cfg.Notify.Ntfy.URL, cfg.Notify.Ntfy.Topic, cfg.Notify.Ntfy.Token, cfg.Sources.HTTPTimeout)
	case "nats":
		n, err = notify.NewNATS(cfg.Notify.NATS.URL, cfg.Notify.NATS.Subject)
	case "telegram":
		n, err = notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
	default:
		return nil, fmt.Errorf("%w: unknown notify.backend %q", quality.ErrConfiguration, cfg.Notify.Backend)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "create %s notifier", cfg.Notify.Backend)
	}
	return n, nil
}

func provideSources(cfg config.Config) []ports.ContentSource {
	out := make([]ports.ContentSource, 0, 2)
	if dir := strings.TrimSpace(cfg.Sources.InboxDir); dir != "" {
		out = append(out, source.NewInbox(dir, cfg.Sources.ProcessedDir))
	}
	if len(cfg.Sources.HTML) > 0 {
		pages := make([]source.HTMLPage, 0, len(cfg.Sources.HTML))
		for _, page := range cfg.Sources.HTML {
			pages = append(pages, source.HTMLPage{
				URL:         page.URL,
				Name:        page.Name,
				ContentType: page.ContentType,
				Credibility: page.Credibility,
			})
		}
		out = append(out, source.NewHTML(pages, cfg.Sources.HTTPTimeout))
	}
	return out
}

func provideWorkflowProfile(cfg config.Config) (approval.WorkflowProfile, error) {
	return approval.LoadWorkflowProfile(cfg.Workflow.ProfileFile)
}

func provideEngineSeed(cfg config.Config) (quality.EngineConfig, error) {
	return cfg.Engine.Seed()
}

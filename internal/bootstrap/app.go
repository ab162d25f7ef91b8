package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contentgate/internal/bootstrap/config"
	"contentgate/internal/bootstrap/database"
	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/persistence/schema"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
)

// SchemaVersion is bumped whenever a model change needs more than AutoMigrate.
const SchemaVersion = 1

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithComponent(ctx, "bootstrap.app")
	logging.Info(logCtx, "loading application config", slog.String("config_file", configFile))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open database")
	}

	logging.Info(logCtx, "application bootstrap completed", slog.String("database_driver", cfg.Database.Driver))

	return &App{
		Config: cfg,
		DB:     db,
	}, nil
}

// InitSchema migrates every table and records the schema version.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithComponent(ctx, "bootstrap.app")
	logging.Info(logCtx, "start schema migration")

	models := append(model.All(), &schema.ProjectMeta{})
	if err := a.DB.WithContext(ctx).AutoMigrate(models...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	meta := schema.ProjectMeta{Key: schema.KeySchemaVersion, Value: strconv.Itoa(SchemaVersion)}
	if err := a.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error; err != nil {
		return errs.Wrap(err, "record schema version")
	}

	logging.Info(logCtx, "schema migration completed", slog.Int("schema_version", SchemaVersion))
	return nil
}

// StoredSchemaVersion returns the recorded schema version, or 0 before
// init-db has run.
func (a *App) StoredSchemaVersion(ctx context.Context) (int, error) {
	if !a.DB.WithContext(ctx).Migrator().HasTable(&schema.ProjectMeta{}) {
		return 0, nil
	}
	var meta schema.ProjectMeta
	err := a.DB.WithContext(ctx).Where("key = ?", schema.KeySchemaVersion).Take(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(err, "read schema version")
	}
	version, err := strconv.Atoi(meta.Value)
	if err != nil {
		return 0, errs.Wrapf(err, "parse schema version %q", meta.Value)
	}
	return version, nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithComponent(ctx, "bootstrap.app"), "database connection closed")
	return nil
}

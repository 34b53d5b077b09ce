package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/KAsare1/telecare-server/cmd/config"
	"github.com/KAsare1/telecare-server/cmd/models"
)

type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}

// NewPSQLStorage opens the Postgres pool. DB_DRIVER=postgres routes the
// dialector through lib/pq instead of pgx.
func NewPSQLStorage(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	dialector := postgres.Open(cfg.DatabaseURL)
	if cfg.DBDriver == config.DriverPq {
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DatabaseURL})
	}

	return Open(dialector, cfg.DBMaxConns, logger)
}

// Open wraps gorm.Open with the settings every store relies on:
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, maxConns int, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError:                           true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormlogger.New(gormWriter{log: logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns)
	}
	return db, nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type migration struct {
	model interface{}
	name  string
}

var migrations = []migration{
	{&models.Doctor{}, "Doctor"},
	{&models.Patient{}, "Patient"},
	{&models.Appointment{}, "Appointment"},
	{&models.ConnectionRequest{}, "ConnectionRequest"},
}

// Migrate creates or updates every table, including the
// (doc_id, schedule_time) unique index bookings depend on.
func Migrate(db *gorm.DB, logger zerolog.Logger) error {
	logger.Info().Msg("starting database migrations")
	for _, m := range migrations {
		logger.Info().Str("table", m.name).Msg("migrating")
		if err := db.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", m.name, err)
		}
	}
	logger.Info().Msg("migrations completed")
	return nil
}

// TableNames lists the names accepted by Clear.
func TableNames() []string {
	names := make([]string, 0, len(migrations))
	for _, m := range migrations {
		names = append(names, m.name)
	}
	return names
}

// Clear drops the named tables, or every table when names is empty.
func Clear(db *gorm.DB, names []string, logger zerolog.Logger) error {
	byName := make(map[string]interface{}, len(migrations))
	for _, m := range migrations {
		byName[m.name] = m.model
	}

	var tables []interface{}
	if len(names) == 0 {
		// dependents first
		for i := len(migrations) - 1; i >= 0; i-- {
			tables = append(tables, migrations[i].model)
		}
	}
	for _, name := range names {
		model, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown table: %s", name)
		}
		tables = append(tables, model)
	}

	for _, table := range tables {
		if err := db.Migrator().DropTable(table); err != nil {
			logger.Warn().Err(err).Str("table", fmt.Sprintf("%T", table)).Msg("drop failed")
			continue
		}
		logger.Info().Str("table", fmt.Sprintf("%T", table)).Msg("table dropped")
	}
	return nil
}

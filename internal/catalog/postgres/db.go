package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/tabletalk/tabletalk/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to the session catalog and verifies it answers. Connections
// identify themselves as appName in pg_stat_activity unless the DSN already
// sets application_name.
func Open(ctx context.Context, cfg config.CatalogConfig, appName string) (*sql.DB, error) {
	connConfig, err := parseDSN(cfg.DSN, appName)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db %s@%s: %w", connConfig.Database, connConfig.Host, err)
	}
	return db, nil
}

func parseDSN(dsn, appName string) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("catalog dsn is required (TABLETALK_CATALOG_DSN)")
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok && appName != "" {
		connConfig.RuntimeParams["application_name"] = appName
	}
	return connConfig, nil
}

// Package store persists orchestration outcomes to postgres.
package store

import (
	"context"
	"fmt"

	"voicedesk/app/config"
	"voicedesk/app/service/orchestrator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do"
)

var _ orchestrator.Persister = (*Store)(nil)
var _ do.Shutdownable = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(di *do.Injector) (*Store, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Database)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Shutdown() error {
	s.pool.Close()

	return nil
}

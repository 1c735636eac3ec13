// Package pg bootstraps PostgreSQL access on pgx/v5.
//
// Connect opens a *pgxpool.Pool with retries, Migrate applies goose migrations
// from an fs.FS (usually an embed.FS), Healthcheck adapts the pool to a
// readiness probe, and WithTx wraps a function in a transaction.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, ".", cfg, slog.Default()); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify errors returned by pgx.
package pg

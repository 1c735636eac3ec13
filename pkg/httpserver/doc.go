// Package httpserver runs an http.Server tied to a context and serves the
// liveness and readiness probes.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run returns when ctx is cancelled, after a graceful shutdown bounded by
// the shutdown timeout. Startup failures are wrapped with ErrStart and
// shutdown failures with ErrShutdown.
package httpserver

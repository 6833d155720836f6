package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"tailscale.com/tsnet"
)

const tsnetDefaultHostname = "domo"

// StartTailscale exposes the dashboard on the tailnet via an embedded tsnet
// node. It serves the same mux and auth as the local listener and blocks
// until ctx is cancelled. The auth key comes from the environment only.
func (s *Server) StartTailscale(ctx context.Context) error {
	cfg := s.cfg.Tailscale
	if !cfg.Enabled {
		return nil
	}
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = tsnetDefaultHostname
	}

	srv := &tsnet.Server{
		Hostname:  hostname,
		Dir:       cfg.StateDir,
		AuthKey:   os.Getenv("DOMO_TSNET_AUTH_KEY"),
		Ephemeral: cfg.Ephemeral,
		Logf:      func(format string, args ...any) {}, // tsnet is chatty
	}
	defer srv.Close()

	ln, err := srv.ListenTLS("tcp", ":443")
	if err != nil {
		return fmt.Errorf("tsnet listen: %w", err)
	}
	slog.Info("dashboard on tailnet", "hostname", hostname)

	httpSrv := &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return fmt.Errorf("tsnet server: %w", err)
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github/itish2003/agriqa/controller"
	"github/itish2003/agriqa/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API. When WATCH_DIR is set, files dropped into that
directory are ingested as well.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controller.NewRouter(a.log, controller.RouterConfig{
		AppName:   a.cfg.AppName,
		UploadDir: a.files.Dir,
		Auth:      controller.NewAuthMiddleware(a.log, a.cfg.SecretKey, a.cfg.Algorithm, time.Duration(a.cfg.AccessTokenExpireMinutes)*time.Minute),
		AskLimit:  controller.NewUserRateLimiter(a.cfg.AskRatePerMin),
		Knowledge: controller.NewKnowledgeController(a.log, a.knowledge, a.retrieval, a.cfg.MaxUploadSize),
		QA:        controller.NewQAController(a.log, a.qa),
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.cfg.WatchDir != "" {
		if err := os.MkdirAll(a.cfg.WatchDir, 0o755); err != nil {
			return fmt.Errorf("create watch dir: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("server starting", "addr", srv.Addr, "environment", a.cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfg.WatchDir != "" {
		watcher := services.NewInboxWatcher(a.log, a.knowledge, a.cfg.WatchDir)
		g.Go(func() error {
			if err := watcher.Scan(gctx); err != nil && gctx.Err() == nil {
				a.log.Error("initial inbox scan failed", "dir", a.cfg.WatchDir, "error", err)
			}
			return watcher.Watch(gctx)
		})
	}
	return g.Wait()
}

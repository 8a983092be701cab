package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/scanner"
	"github.com/rcliao/movemate/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Serve the packing list and accept frames over HTTP",
		PreRun: bindFlags("addr", "static_dir=static", "cooldown", "notice_ttl=notice-ttl", "capture_interval=interval"),
		Run:    runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().String("static", "", "Directory served at /")
	cmd.Flags().Duration("cooldown", 0, "Minimum time between classification requests (default 4s)")
	cmd.Flags().Duration("notice-ttl", 0, "How long the added-item notice stays visible (default 2s)")
	cmd.Flags().Duration("interval", 0, "Capture interval when --frames is set (default 4s)")
	cmd.Flags().String("frames", "", "Directory of images to feed as camera frames")
	cmd.Flags().Bool("loop", false, "Replay --frames forever")
	cmd.Flags().Bool("scan", false, "Start with scanning switched on")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	framesDir, _ := cmd.Flags().GetString("frames")
	loop, _ := cmd.Flags().GetBool("loop")
	scanOn, _ := cmd.Flags().GetBool("scan")

	cfg := loadConfig()
	logger := newLogger(cfg)

	scanLog := openLog(cfg)
	defer scanLog.Close()

	sc := scanner.New(newAdapter(cfg, logger), scanner.Options{
		Cooldown:  cfg.Cooldown,
		NoticeTTL: cfg.NoticeTTL,
		Provider:  cfg.Provider,
		Recorder:  scanLog,
		Logger:    logger,
	})
	sc.SetScanning(scanOn)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if framesDir != "" {
		src, err := scanner.NewDirSource(framesDir, loop)
		if err != nil {
			exitErr("frames", err)
		}
		go func() {
			if err := sc.Run(ctx, src, cfg.CaptureInterval); err != nil && !errors.Is(err, context.Canceled) {
				level.Error(logger).Log("msg", "frame loop stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(sc, server.Options{
			Log:       scanLog,
			Logger:    logger,
			StaticDir: cfg.StaticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "listening", "addr", cfg.Addr, "provider", cfg.Provider, "db", cfg.DB)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			exitErr("serve", err)
		}
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			level.Error(logger).Log("msg", "shutdown", "err", err)
		}
	}
}

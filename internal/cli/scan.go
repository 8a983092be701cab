package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/scanner"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan <dir|file>",
		Short: "Scan image frames from disk and print the resulting packing list",
		Long: "Feed images from a directory (in name order) or a single file through the\n" +
			"scanner at the capture interval, then print the packing list.",
		Args:   cobra.ExactArgs(1),
		PreRun: bindFlags("cooldown", "notice_ttl=notice-ttl", "capture_interval=interval"),
		Run:    runScan,
	}

	cmd.Flags().Duration("cooldown", 0, "Minimum time between classification requests (default 4s)")
	cmd.Flags().Duration("notice-ttl", 0, "How long the added-item notice stays visible (default 2s)")
	cmd.Flags().Duration("interval", 0, "Capture interval (default 4s)")
	cmd.Flags().Bool("loop", false, "Replay the directory until interrupted")
	cmd.Flags().Bool("once", false, "Classify a single frame and exit")

	RootCmd.AddCommand(cmd)
}

func runScan(cmd *cobra.Command, args []string) {
	loop, _ := cmd.Flags().GetBool("loop")
	once, _ := cmd.Flags().GetBool("once")

	cfg := loadConfig()
	logger := newLogger(cfg)

	scanLog := openLog(cfg)
	defer scanLog.Close()

	src, err := frameSource(args[0], loop)
	if err != nil {
		exitErr("frames", err)
	}

	sc := scanner.New(newAdapter(cfg, logger), scanner.Options{
		Cooldown:  cfg.Cooldown,
		NoticeTTL: cfg.NoticeTTL,
		Provider:  cfg.Provider,
		Recorder:  scanLog,
		Logger:    logger,
	})
	sc.SetScanning(true)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		frame, err := src.Capture(ctx)
		if err != nil {
			exitErr("capture", err)
		}
		if _, err := sc.Offer(ctx, frame); err != nil {
			exitErr("scan", err)
		}
	} else if err := sc.Run(ctx, src, cfg.CaptureInterval); err != nil && !errors.Is(err, context.Canceled) {
		exitErr("scan", err)
	}

	items, rev := sc.Snapshot()
	out := cmd.OutOrStdout()
	if textFormat() {
		printItems(out, items)
		st := sc.Stats()
		fmt.Fprintf(out, "%d frame(s) classified, %d failed, %d skipped\n",
			st.Requests, st.Failures, st.DroppedBusy+st.DroppedCooldown+st.DroppedIdle)
		return
	}
	printJSON(out, map[string]any{
		"items":    items,
		"count":    len(items),
		"revision": rev,
		"stats":    sc.Stats(),
	})
}

func frameSource(path string, loop bool) (scanner.FrameSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return scanner.NewDirSource(path, loop)
	}
	if loop {
		return scanner.FileSource{Path: path}, nil
	}
	return &onceSource{src: scanner.FileSource{Path: path}}, nil
}

// onceSource yields one frame from src, then io.EOF.
type onceSource struct {
	src  scanner.FrameSource
	done bool
}

func (o *onceSource) Capture(ctx context.Context) ([]byte, error) {
	if o.done {
		return nil, io.EOF
	}
	o.done = true
	return o.src.Capture(ctx)
}

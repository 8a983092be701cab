package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify one image and print the raw detections",
		Long:  "Send one image to the configured provider and print what it detected. Nothing is added to any list.",
		Args:  cobra.ExactArgs(1),
		Run:   runClassify,
	}

	RootCmd.AddCommand(cmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := newLogger(cfg)

	image, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read image", err)
	}

	res := newAdapter(cfg, logger).Detect(cmd.Context(), image)
	if res.Err != nil {
		exitErr("classify", res.Err)
	}

	out := cmd.OutOrStdout()
	if textFormat() {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCATEGORY\tFRAGILITY")
		for _, d := range res.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Category, d.Fragility)
		}
		tw.Flush()
		fmt.Fprintf(out, "%d detection(s) in %s\n", len(res.Items), res.Elapsed.Round(time.Millisecond))
		return
	}

	items := res.Items
	if items == nil {
		items = []model.DetectedItem{}
	}
	printJSON(out, map[string]any{
		"provider":   cfg.Provider,
		"items":      items,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	})
}

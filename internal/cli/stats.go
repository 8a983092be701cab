package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scanner and scan log statistics of a running server",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	if err := showStats(cmd.Context(), serverClient(), cmd.OutOrStdout(), textFormat()); err != nil {
		exitErr("stats", err)
	}
}

func showStats(ctx context.Context, c *apiClient, w io.Writer, text bool) error {
	var st server.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &st); err != nil {
		return err
	}
	if !text {
		printJSON(w, st)
		return nil
	}

	sc := st.Scanner
	fmt.Fprintf(w, "scanning:   %t (%s)\n", st.Status.Scanning, st.Status.State)
	fmt.Fprintf(w, "items:      %d\n", st.Items)
	fmt.Fprintf(w, "frames:     %s offered, %s classified, %s failed\n",
		humanize.Comma(int64(sc.Offered)), humanize.Comma(int64(sc.Requests)), humanize.Comma(int64(sc.Failures)))
	fmt.Fprintf(w, "dropped:    %d idle, %d busy, %d cooldown\n", sc.DroppedIdle, sc.DroppedBusy, sc.DroppedCooldown)
	if !st.Status.LastCompleted.IsZero() {
		fmt.Fprintf(w, "last round: %s\n", humanize.Time(st.Status.LastCompleted))
	}

	if lg := st.Log; lg != nil {
		size := "in memory"
		if lg.DBSizeBytes > 0 {
			size = humanize.Bytes(uint64(lg.DBSizeBytes))
		}
		fmt.Fprintf(w, "scan log:   %s (%s)\n", lg.DBPath, size)
		fmt.Fprintf(w, "rounds:     %d (%d failed), avg %.0f ms\n", lg.TotalRounds, lg.FailedRounds, lg.AvgLatencyMS)
		for _, cat := range lg.Categories {
			fmt.Fprintf(w, "  %-16s seen %d, admitted %d\n", cat.Category, cat.Seen, cat.Admitted)
		}
	}
	return nil
}

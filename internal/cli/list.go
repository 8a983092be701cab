package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/model"
	"github.com/rcliao/movemate/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the packing list of a running server",
		Run:   runList,
	}

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	if err := listItems(cmd.Context(), serverClient(), cmd.OutOrStdout(), textFormat()); err != nil {
		exitErr("list", err)
	}
}

func listItems(ctx context.Context, c *apiClient, w io.Writer, text bool) error {
	var resp server.ItemsResponse
	if err := c.do(ctx, http.MethodGet, "/api/items", nil, nil, &resp); err != nil {
		return err
	}
	if !text {
		printJSON(w, resp)
		return nil
	}
	printItems(w, resp.Items)
	return nil
}

func printItems(w io.Writer, items []model.PackingItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "packing list is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tFRAGILITY\tADDED\tID")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.Name, it.Category, it.Fragility, humanize.Time(it.Timestamp), it.ID)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d item(s)\n", len(items))
}

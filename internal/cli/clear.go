package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the packing list",
		Long:  "Remove every item from the packing list. Asks for confirmation unless --yes is given.",
		Run:   runClear,
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")

	cleared, err := clearItems(cmd.Context(), serverClient(), cmd.InOrStdin(), cmd.OutOrStdout(), yes)
	if err != nil {
		exitErr("clear", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"cleared":%t}`+"\n", cleared)
}

// clearItems empties the list after confirmation. It reports whether the
// list was cleared.
func clearItems(ctx context.Context, c *apiClient, in io.Reader, out io.Writer, yes bool) (bool, error) {
	if !yes {
		var resp server.ItemsResponse
		if err := c.do(ctx, http.MethodGet, "/api/items", nil, nil, &resp); err != nil {
			return false, err
		}
		if !confirm(in, out, fmt.Sprintf("Clear all %d item(s)? [y/N] ", resp.Count)) {
			return false, nil
		}
	}
	q := url.Values{"confirm": {"true"}}
	if err := c.do(ctx, http.MethodDelete, "/api/items", q, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

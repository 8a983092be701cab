package cli

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/scanner"
)

func init() {
	cmd := &cobra.Command{
		Use:       "scanning [on|off]",
		Short:     "Show or switch the scanning state of a running server",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		Run:       runScanning,
	}

	RootCmd.AddCommand(cmd)
}

func runScanning(cmd *cobra.Command, args []string) {
	c := serverClient()
	var st scanner.Status

	if len(args) == 0 {
		if err := c.do(cmd.Context(), http.MethodGet, "/api/scanning", nil, nil, &st); err != nil {
			exitErr("scanning", err)
		}
	} else {
		var active bool
		switch args[0] {
		case "on":
			active = true
		case "off":
		default:
			exitErr("scanning", fmt.Errorf("expected on or off, got %q", args[0]))
		}
		body := bytes.NewBufferString(fmt.Sprintf(`{"active":%t}`, active))
		if err := c.do(cmd.Context(), http.MethodPost, "/api/scanning", nil, body, &st); err != nil {
			exitErr("scanning", err)
		}
	}

	printJSON(cmd.OutOrStdout(), st)
}

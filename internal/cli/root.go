// Package cli implements the movemate CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/rcliao/movemate/internal/classifier"
	"github.com/rcliao/movemate/internal/config"
	"github.com/rcliao/movemate/internal/logging"
	"github.com/rcliao/movemate/internal/store"
)

var (
	cfgFile    string
	formatFlag string

	v = config.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "movemate",
	Short: "Build a moving-day packing list from camera frames",
	Long: "Sends camera frames to a multimodal model, collects the household items it\n" +
		"recognizes into a deduplicated packing list, and serves the list over HTTP.",
	SilenceUsage: true,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./movemate.yaml or ~/.movemate/movemate.yaml)")
	pf.StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	pf.StringP("db", "d", "", "Scan log path (default: in-memory)")
	pf.String("server", "", "Server URL for client commands (default: http://localhost:8080)")
	pf.String("provider", "", "Classifier provider: gemini, openai or ollama")
	pf.String("model", "", "Model name passed to the provider")
	pf.String("log-level", "", "Log level: debug, info, warn or error")

	v.BindPFlag("db", pf.Lookup("db"))
	v.BindPFlag("server", pf.Lookup("server"))
	v.BindPFlag("provider", pf.Lookup("provider"))
	v.BindPFlag("model", pf.Lookup("model"))
	v.BindPFlag("log_level", pf.Lookup("log-level"))
}

// bindFlags binds command-local flags to config keys once the command has
// been selected. Keys are "key" or "key=flag".
func bindFlags(keys ...string) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		for _, k := range keys {
			key, flag, ok := strings.Cut(k, "=")
			if !ok {
				flag = key
			}
			if f := cmd.Flags().Lookup(flag); f != nil {
				v.BindPFlag(key, f)
			}
		}
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) log.Logger {
	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		exitErr("logger", err)
	}
	return logger
}

func newAdapter(cfg *config.Config, logger log.Logger) *classifier.Adapter {
	p, err := classifier.NewProvider(classifier.Options{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		exitErr("classifier", err)
	}
	return classifier.NewAdapter(p, logger)
}

func openLog(cfg *config.Config) *store.SQLiteStore {
	s, err := store.NewSQLiteStore(cfg.DB)
	if err != nil {
		exitErr("open scan log", err)
	}
	return s
}

func textFormat() bool { return formatFlag == "text" }

func printJSON(w io.Writer, data any) {
	b, _ := json.MarshalIndent(data, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

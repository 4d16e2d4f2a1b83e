package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/versionsql/internal/config"
	"github.com/kalambet/versionsql/internal/console"
	"github.com/kalambet/versionsql/internal/storage"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run one query against a running server",
	Long: `Run one query against a running server and print the result as indented JSON.

The SQL is sent as-is. Without an argument, or with "-", it is read from stdin.

Examples:
  versionsql query "SELECT * FROM versionTypes"
  echo "SELECT count(*) FROM versions" | versionsql query`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) == 0 || args[0] == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		} else {
			text = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runQuery(cmd.Context(), client, text)
	},
}

func runQuery(ctx context.Context, client *apiClient, text string) error {
	ep, err := client.endpoint()
	if err != nil {
		return err
	}
	c := console.New(ep, &resultView{})
	if _, err := c.Submit(ctx, text); err != nil {
		// The view already printed the message.
		var f *console.Failure
		if errors.As(err, &f) {
			return errReported
		}
		return err
	}
	return nil
}

// errReported signals a failure whose message was already printed.
var errReported = errors.New("query failed")

// resultView prints results and alerts of a one-shot query.
type resultView struct{}

func (resultView) SetSubmitEnabled(bool)       {}
func (resultView) AppendHistory(console.Entry) {}
func (resultView) SetInput(string)             {}

func (resultView) ShowResult(pretty string) { fmt.Fprintln(out, pretty) }

func (resultView) Alert(msg string) { printError("%s", msg) }

// --- refresh ---

type healthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"last_refresh"`
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force the server to reload the catalog from CurseForge",
	Long: `Force the server to reload the catalog from CurseForge.

Requires server.admin_token on both sides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.token == "" {
			return fmt.Errorf("server.admin_token is not set; use VERSIONSQL_ADMIN_TOKEN or `versionsql config set-secret admin_token <token>`")
		}

		printStep("Refreshing catalog...")
		resp, err := client.post(cmd.Context(), "/admin/refresh")
		if err != nil {
			return err
		}
		var h healthResponse
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}
		printSuccess("Catalog refreshed (%s)", refreshLabel(h.LastRefresh))
		return nil
	},
}

func refreshLabel(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and mirror status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var h healthResponse
		if err := decodeJSON(resp, &h); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running at %s", client.baseURL)
			printStatus("Last refresh", "%s", refreshLabel(h.LastRefresh))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printMirrorStatus(ctx, cfg.Storage.DataDir)
	return nil
}

func printMirrorStatus(ctx context.Context, dataDir string) {
	store, err := storage.OpenReadOnly(dataDir)
	if errors.Is(err, storage.ErrNoDatabase) {
		printStatus("Mirror", "empty")
		return
	}
	if err != nil {
		printStatus("Mirror", "unavailable (%v)", err)
		return
	}
	defer store.Close()

	st, err := store.LastSync(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		printStatus("Mirror", "empty")
		return
	}
	if err != nil {
		printStatus("Mirror", "unreadable (%v)", err)
		return
	}
	printStatus("Mirror", "%s versions, %s version types, synced %s",
		humanize.Comma(int64(st.Versions)),
		humanize.Comma(int64(st.VersionTypes)),
		humanize.Time(st.RefreshedAt))
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "  %s\n", colorize(colorDim, "# "+config.ConfigFilePath()))
		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var secretAccounts = map[string]bool{
	"curseforge_api_token": true,
	"admin_token":          true,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <curseforge_api_token|admin_token> [value]",
	Short: "Store a secret in the secrets file",
	Long: `Store a secret in the secrets file (mode 0600).

Without a value, the secret is read from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account := args[0]
		if !secretAccounts[account] {
			return fmt.Errorf("unknown secret %q (want curseforge_api_token or admin_token)", account)
		}

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			value = strings.TrimSpace(string(data))
		}
		if value == "" {
			return fmt.Errorf("secret value is required")
		}

		if err := config.SetSecret(account, value); err != nil {
			return fmt.Errorf("storing secret: %w", err)
		}
		printSuccess("Stored %s", account)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

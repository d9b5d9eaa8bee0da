package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change configuration",
	Long: `Settings are read from the config file (~/.ragbot/config.toml or --config),
then var.env and .env in the working directory, then RAGBOT_* environment
variables. Later sources win.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the config file",
	Long: `Writes one key to the config file, creating it if needed.

Keys use dot notation, e.g. index.chunk_size or llm.provider. Lists are
comma separated; durations use Go syntax such as 90s.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configured services are reachable",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	path, err := file.ResolveConfigPath(configPath)
	if err != nil {
		return err
	}
	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Current Settings"))
	cmd.Printf("Config file: %s\n\n", path)

	section := ""
	for _, b := range file.Bindings(&settings) {
		head, _, _ := strings.Cut(b.Key, ".")
		if head == b.Key {
			head = ""
		}
		if head != section {
			section = head
			if head == "" {
				cmd.Println()
			} else {
				cmd.Printf("[%s]\n", head)
			}
		}
		cmd.Printf("  %s = %s\n", b.Key, formatValue(b.Key, b.Value()))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	value, err := file.ParseValue(key, raw)
	if err != nil {
		return err
	}

	store, err := openConfigStore(configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	cmd.Printf("Set %s = %s in %s\n", key, formatValue(key, value), store.Path())
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	st := newStyles(cmd.OutOrStdout())
	results := runChecks(cmd.Context(), settings)
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
		cmd.Println(st.check(r.Component, r.Target, r.Detail, r.Err))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	return nil
}

// formatValue renders a setting for display, masking secrets.
func formatValue(key string, v any) string {
	if strings.HasSuffix(key, "api_key") {
		s, _ := v.(string)
		if s == "" {
			return "(not set)"
		}
		return maskAPIKey(s)
	}
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case []string:
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// maskAPIKey masks an API key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

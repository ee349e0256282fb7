package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedsentinel/internal/config"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	RunE:  sourcesAction,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "emit sources as JSON")
	rootCmd.AddCommand(sourcesCmd)
}

func sourcesAction(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sources := cfg.FeedSources()

	if sourcesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	}

	for _, src := range sources {
		state := "enabled"
		if !src.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-20s %-5s %-8s %s\n", src.ID, src.Type, state, src.URL)
	}
	fmt.Printf("%d sources.\n", len(sources))
	return nil
}

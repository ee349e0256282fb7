// Package cli provides the command-line interface for feedsentinel.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedsentinel/internal/aggregate"
	"github.com/ppiankov/feedsentinel/internal/config"
	"github.com/ppiankov/feedsentinel/internal/feed"
	"github.com/ppiankov/feedsentinel/internal/health"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "feedsentinel",
	Short: "Fetch news feeds with per-source circuit breaking",
	Long:  "feedsentinel aggregates RSS, Atom, JSON, and HTML news sources behind per-source circuit breakers, tracking the health of each source so broken feeds never take the rest down.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("feedsentinel %s (%s)\n", Version, Commit)
	},
}

func init() {
	defaultDir := ".feedsentinel"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".feedsentinel")
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultDir, "directory holding config.yaml")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// buildAggregator assembles the fetch pipeline from the loaded config: a
// health registry seeded with every configured source, a normalizer, and
// the aggregator gluing them together.
func buildAggregator(cfg *config.Config) (*health.Registry, *aggregate.Aggregator, []feed.Source) {
	registry := health.NewRegistry(cfg.BreakerSettings())
	sources := cfg.FeedSources()
	for _, src := range sources {
		registry.Register(src)
	}

	client := &http.Client{Timeout: cfg.Fetch.Timeout.Duration}
	normalizer := feed.NewNormalizer(client, cfg.Fetch.UserAgent)

	return registry, aggregate.New(registry, normalizer, cfg.Fetch.MaxConcurrent), sources
}

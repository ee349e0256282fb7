package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedsentinel/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and source reachability",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}

	enabled := 0
	for _, s := range cfg.FeedSources() {
		if s.Enabled {
			enabled++
		}
	}
	printCheck(true, "config.yaml (%d sources, %d enabled)", len(cfg.Sources), enabled)
	printCheck(true, "breaker: open after %d failures, retry after %s, close after %d successes",
		cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout.Duration, cfg.Breaker.SuccessThreshold)

	// Reachability: fetch each enabled source once.
	registry, agg, sources := buildAggregator(cfg)
	for _, src := range sources {
		if !src.Enabled {
			printInfo("skipped (disabled): %s", src.ID)
			continue
		}
		items, err := agg.FetchSource(cmd.Context(), src)
		if err != nil {
			printCheck(false, "%s: %v", src.ID, err)
			ok = false
			continue
		}
		res, _ := registry.SourceHealth(src.ID)
		avg := ""
		if res.AvgResponseTimeMs != nil {
			avg = fmt.Sprintf(", %.0fms", *res.AvgResponseTimeMs)
		}
		printCheck(true, "%s (%d items%s)", src.ID, len(items), avg)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedsentinel/internal/aggregate"
	"github.com/ppiankov/feedsentinel/internal/config"
	"github.com/ppiankov/feedsentinel/internal/health"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll sources on an interval and print health-change events",
	RunE:  watchAction,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "time between polls")
	rootCmd.AddCommand(watchCmd)
}

func watchAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, agg, sources := buildAggregator(cfg)
	events := registry.Subscribe()
	ctx := cmd.Context()

	go func() {
		for ev := range events {
			printEvent(ev)
		}
	}()

	fmt.Printf("Watching %d sources every %s. Ctrl-C to stop.\n", len(sources), watchInterval)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		agg.FetchAll(ctx, sources, aggregate.Query{})
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printEvent(ev health.Event) {
	ts := ev.At.Format("15:04:05")
	switch ev.Type {
	case health.EventCircuitOpened:
		fmt.Printf("%s  %s: circuit OPEN after %d failures: %s\n", ts, ev.SourceID, ev.Failures, ev.Reason)
	case health.EventCircuitClosed:
		fmt.Printf("%s  %s: circuit closed\n", ts, ev.SourceID)
	case health.EventSourceDegraded:
		fmt.Printf("%s  %s: degraded (%d consecutive failures): %s\n", ts, ev.SourceID, ev.Failures, ev.Reason)
	case health.EventSourceUnhealthy:
		fmt.Printf("%s  %s: unhealthy: %s\n", ts, ev.SourceID, ev.Reason)
	case health.EventSourceHealthy:
		fmt.Printf("%s  %s: healthy\n", ts, ev.SourceID)
	}
}

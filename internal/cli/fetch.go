package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/feedsentinel/internal/aggregate"
	"github.com/ppiankov/feedsentinel/internal/config"
	"github.com/ppiankov/feedsentinel/internal/feed"
)

var (
	fetchQuery string
	fetchLimit int
	fetchJSON  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [source-id]",
	Short: "Fetch items from all sources, or one source by id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchQuery, "query", "", "case-insensitive search over title, description, content")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "maximum items to return (0 = no limit)")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "emit items as JSON")
	rootCmd.AddCommand(fetchCmd)
}

func fetchAction(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, agg, sources := buildAggregator(cfg)
	ctx := cmd.Context()
	q := aggregate.Query{Search: fetchQuery, Limit: fetchLimit}

	var items []feed.NewsItem
	if len(args) == 1 {
		src, ok := findSource(sources, args[0])
		if !ok {
			return fmt.Errorf("unknown source %q", args[0])
		}
		fetched, err := agg.FetchSource(ctx, src)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", src.ID, err)
		}
		items = aggregate.Apply(fetched, q)
	} else {
		items = agg.FetchAll(ctx, sources, q)
	}

	if fetchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	printItems(items)
	return nil
}

func findSource(sources []feed.Source, id string) (feed.Source, bool) {
	for _, src := range sources {
		if src.ID == id {
			return src, true
		}
	}
	return feed.Source{}, false
}

func printItems(items []feed.NewsItem) {
	if len(items) == 0 {
		fmt.Println("No items.")
		return
	}

	for _, it := range items {
		age := ""
		if it.PublishedAt != nil {
			age = "  " + humanize.Time(*it.PublishedAt)
		}
		fmt.Printf("[%s]%s\n  %s\n", it.SourceName, age, it.Title)
		if it.Link != "" {
			fmt.Printf("  %s\n", it.Link)
		}
		fmt.Println()
	}
	fmt.Printf("%d items.\n", len(items))
}

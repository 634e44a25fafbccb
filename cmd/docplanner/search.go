package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/floegence/docplanner/internal/config"
	"github.com/floegence/docplanner/internal/settings"
	"github.com/floegence/docplanner/internal/websearch"
)

func searchCmd(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)

	provider := fs.String("provider", "", "Web search provider (default: from config, else brave)")
	count := fs.Int("count", 5, "Number of results to return (max: 10)")
	format := fs.String("format", "", "Output format: json|text (default: text on a terminal, json otherwise)")
	configPath := fs.String("config-path", "", "Config path (default: ~/.docplanner/config.json)")
	maxChars := fs.Int("max-chars", 0, "Truncate the query to this many characters (default: max_query_chars)")
	timeout := fs.Duration("timeout", 15*time.Second, "Search timeout")

	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fs.Usage()
		os.Exit(2)
	}
	outFormat, err := outputFormat(*format, os.Stdout)
	if err != nil {
		fatalf("invalid --format: %v", err)
	}

	cfg, cfgPath, err := loadConfig(*configPath, false)
	if err != nil {
		fatalf("failed to load config (%s): %v", cfgPath, err)
	}

	providerID := strings.TrimSpace(strings.ToLower(*provider))
	if providerID == "" {
		providerID = cfg.AI.EffectiveWebSearchProvider()
	}
	if providerID == config.WebSearchDisabled {
		fatalf("web search is disabled in %s", cfgPath)
	}

	client, err := newSearchClient(settings.NewSecretsStore(config.SecretsPath(cfgPath)), providerID, *count)
	if err != nil {
		if errors.Is(err, errMissingSearchKey) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			fatalf("Hint: set DOCPLANNER_BRAVE_API_KEY (or BRAVE_API_KEY), or add it to %s.", config.SecretsPath(cfgPath))
		}
		fatalf("failed to init search: %v", err)
	}

	limit := *maxChars
	if limit <= 0 {
		limit = cfg.EffectiveMaxQueryChars()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := client.Search(ctx, websearch.SearchRequest{Query: truncateRunes(query, limit), Count: *count})
	if err != nil {
		cancel()
		fatalf("search failed: %v", err)
	}

	switch outFormat {
	case "json":
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fatalf("failed to encode result: %v", err)
		}
		fmt.Printf("%s\n", string(b))
	default:
		useANSI := isTerminalWriter(os.Stdout)
		for i, item := range result.Results {
			url := strings.TrimSpace(item.URL)
			if url == "" {
				continue
			}
			title := strings.TrimSpace(item.Title)
			if title == "" {
				title = url
			}
			if snippet := strings.TrimSpace(item.Snippet); snippet != "" {
				fmt.Printf("%d. %s\n   %s\n   %s\n\n", i+1, title, styleURL(url, useANSI), snippet)
			} else {
				fmt.Printf("%d. %s\n   %s\n\n", i+1, title, styleURL(url, useANSI))
			}
		}
	}
}

func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

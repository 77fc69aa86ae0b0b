// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/grapho"
	"github.com/poiesic/grapho/ai"
	"github.com/poiesic/grapho/ai/openai"
	"github.com/poiesic/grapho/core"
)

func main() {
	storeFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:     "embedding-model",
			Usage:    "Embedding model name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "metadata-indexing",
			Usage: "Metadata indexing mode (all, none, allowlist, denylist)",
			Value: "all",
		},
		&cli.StringSliceFlag{
			Name:  "indexed-field",
			Usage: "Field list for allowlist/denylist metadata indexing (repeatable)",
		},
	}
	filterFlag := &cli.StringSliceFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "Metadata filter as key=value (repeatable)",
	}

	app := &cli.App{
		Name:  "grapho",
		Usage: "Hybrid vector-and-graph retrieval store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add nodes from a JSON file (or stdin with -)",
				ArgsUsage: "<nodes.json>",
				Action:    addCommand,
				Flags:     storeFlags,
			},
			{
				Name:      "get",
				Usage:     "Get a node by id",
				ArgsUsage: "<id>",
				Action:    getCommand,
				Flags:     storeFlags,
			},
			{
				Name:   "search",
				Usage:  "Vector similarity search for a query string",
				Action: searchCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results",
						Value: 4,
					},
					filterFlag,
				}, storeFlags...),
			},
			{
				Name:   "metadata",
				Usage:  "Retrieve nodes by indexed metadata",
				Action: metadataCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "n",
						Usage: "Maximum number of results",
						Value: 5,
					},
					filterFlag,
				}, storeFlags...),
			},
			{
				Name:   "traverse",
				Usage:  "Depth-bounded graph traversal seeded by similarity",
				Action: traverseCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of similarity seeds",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Maximum number of tag hops",
						Value: 1,
					},
					filterFlag,
				}, storeFlags...),
			},
			{
				Name:   "mmr",
				Usage:  "Maximal-marginal-relevance graph traversal",
				Action: mmrCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Maximum number of tag hops",
						Value: 2,
					},
					&cli.IntFlag{
						Name:  "fetch-k",
						Usage: "Initial similarity pool size (0 restricts to root neighborhoods)",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "adjacent-k",
						Usage: "Maximum nodes fetched per outgoing tag",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "lambda",
						Usage: "Diversity factor in [0,1]: 0 max diversity, 1 pure relevance",
						Value: 0.5,
					},
					&cli.Float64Flag{
						Name:  "score-threshold",
						Usage: "Stop selecting below this score",
					},
					&cli.BoolFlag{
						Name:  "use-score-threshold",
						Usage: "Apply score-threshold (default is unbounded)",
					},
					&cli.StringSliceFlag{
						Name:  "root",
						Usage: "Initial root node id (repeatable)",
					},
					filterFlag,
				}, storeFlags...),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openStore(c *cli.Context) (*grapho.Store, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	policy, err := core.ParseMetadataPolicy(
		c.String("metadata-indexing"), c.StringSlice("indexed-field")...)
	if err != nil {
		return nil, err
	}

	store, err := grapho.Open(c.String("db"), embedder,
		grapho.WithMetadataIndexing(policy))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// parseFilter turns repeated key=value flags into a metadata filter.
func parseFilter(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

func printNodes(nodes []*core.Node) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}

type nodeInput struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Links    []core.Link    `json:"links,omitempty"`
}

func addCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: path to a JSON node file, or - for stdin")
	}

	var reader io.Reader
	if path := c.Args().First(); path == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open node file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var inputs []nodeInput
	if err := json.NewDecoder(reader).Decode(&inputs); err != nil {
		return fmt.Errorf("failed to decode nodes: %w", err)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	nodes := make([]*core.Node, len(inputs))
	for i, in := range inputs {
		nodes[i] = &core.Node{
			ID:       in.ID,
			Text:     in.Text,
			Metadata: in.Metadata,
			Links:    in.Links,
		}
	}

	ids, err := store.AddNodes(context.Background(), nodes...)
	if err != nil {
		return fmt.Errorf("failed to add nodes: %w", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func getCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: node id")
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	node, err := store.GetNode(context.Background(), c.Args().First())
	if err != nil {
		return err
	}
	return printNodes([]*core.Node{node})
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("query string required")
	}
	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	embedding, err := store.EmbedQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	nodes, err := store.SimilaritySearch(ctx, embedding, c.Int("k"), filter)
	if err != nil {
		return err
	}
	return printNodes(nodes)
}

func metadataCommand(c *cli.Context) error {
	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("at least one --filter is required")
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	nodes, err := store.MetadataSearch(context.Background(), filter, c.Int("n"))
	if err != nil {
		return err
	}
	return printNodes(nodes)
}

func traverseCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("query string required")
	}
	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := grapho.NewTraversalOptions()
	opts.K = c.Int("k")
	opts.Depth = c.Int("depth")
	opts.Filter = filter

	nodes, err := store.TraversalSearch(context.Background(), query, opts)
	if err != nil {
		return err
	}
	return printNodes(nodes)
}

func mmrCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("query string required")
	}
	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := grapho.NewMMROptions()
	opts.K = c.Int("k")
	opts.Depth = c.Int("depth")
	opts.FetchK = c.Int("fetch-k")
	opts.AdjacentK = c.Int("adjacent-k")
	opts.Lambda = c.Float64("lambda")
	if c.Bool("use-score-threshold") {
		opts.ScoreThreshold = c.Float64("score-threshold")
	}
	opts.InitialRoots = c.StringSlice("root")
	opts.Filter = filter

	nodes, err := store.MMRTraversalSearch(context.Background(), query, opts)
	if err != nil {
		return err
	}
	return printNodes(nodes)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

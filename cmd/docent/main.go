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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/docent"
	"github.com/poiesic/docent/config"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/ingestion"
	"github.com/poiesic/docent/vectorize"
)

func main() {
	// Local overrides for model hosts and keys
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "docent",
		Usage: "Knowledge base question answering over your documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the library directory (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:  "kb",
				Usage: "Manage knowledge bases",
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "Create a knowledge base",
						Action: kbCreateCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "name",
								Aliases:  []string{"n"},
								Usage:    "Unique knowledge base name",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "description",
								Usage: "Optional description",
							},
						},
					},
					{
						Name:   "list",
						Usage:  "List knowledge bases",
						Action: kbListCommand,
					},
					{
						Name:   "delete",
						Usage:  "Delete a knowledge base and all its documents",
						Action: kbDeleteCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "kb",
								Usage:    "Knowledge base id or name",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Ingest a text document into a knowledge base",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kb",
						Usage:    "Knowledge base id or name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "title",
						Aliases:  []string{"t"},
						Usage:    "Document title",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to an extracted text file (reads stdin when omitted)",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum chunk length in runes (overrides config)",
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Runes shared between consecutive chunks (overrides config)",
					},
				},
			},
			{
				Name:  "doc",
				Usage: "Manage documents",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List documents of a knowledge base",
						Action: docListCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "kb",
								Usage:    "Knowledge base id or name",
								Required: true,
							},
						},
					},
					{
						Name:   "delete",
						Usage:  "Delete a document and its chunks",
						Action: docDeleteCommand,
						Flags: []cli.Flag{
							&cli.Uint64Flag{
								Name:     "id",
								Usage:    "Document id",
								Required: true,
							},
						},
					},
					{
						Name:   "rechunk",
						Usage:  "Re-split and re-embed a document from its stored text",
						Action: docRechunkCommand,
						Flags: []cli.Flag{
							&cli.Uint64Flag{
								Name:     "id",
								Usage:    "Document id",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "chunk-size",
								Usage: "Maximum chunk length in runes (overrides config)",
							},
							&cli.IntFlag{
								Name:  "chunk-overlap",
								Usage: "Runes shared between consecutive chunks (overrides config)",
							},
						},
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run hybrid retrieval and print the ranked passages",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kb",
						Usage:    "Knowledge base id or name",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of passages (overrides config)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question and print the synthesized answer with citations",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kb",
						Usage:    "Knowledge base id or name",
						Required: true,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every chunk of a knowledge base",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kb",
						Usage:    "Knowledge base id or name",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks per embedding call",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openLibrary loads configuration and opens the library it points at.
// The caller owns the returned library and must close it.
func openLibrary(c *cli.Context) (*docent.Library, *config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbPath := cfg.Database
	if override := c.String("db"); override != "" {
		dbPath = override
	}

	lib, err := docent.Open(dbPath, docent.WithAIConfig(cfg.AIServiceConfig()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open library at %s: %w", dbPath, err)
	}
	return lib, cfg, nil
}

// resolveKnowledgeBase accepts either a numeric id or a name.
func resolveKnowledgeBase(ctx context.Context, lib *docent.Library, ref string) (*core.KnowledgeBase, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		kb, err := lib.KnowledgeBaseRepository().GetKnowledgeBase(ctx, core.ID(id))
		if err == nil {
			return kb, nil
		}
	}
	return lib.KnowledgeBaseRepository().GetKnowledgeBaseByName(ctx, ref)
}

func kbCreateCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	kb, err := lib.CreateKnowledgeBase(context.Background(), c.String("name"), c.String("description"))
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}

	fmt.Printf("Created knowledge base %d (%s)\n", kb.Id, kb.Name)
	return nil
}

func kbListCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kbs, err := lib.KnowledgeBaseRepository().ListKnowledgeBases(ctx)
	if err != nil {
		return err
	}

	if len(kbs) == 0 {
		fmt.Println("No knowledge bases")
		return nil
	}
	for _, kb := range kbs {
		count, err := lib.DocumentRepository().CountDocumentsByKnowledgeBase(ctx, kb.Id)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\t%d documents", kb.Id, kb.Name, count)
		if kb.Description != "" {
			fmt.Printf("\t%s", kb.Description)
		}
		fmt.Println()
	}
	return nil
}

func kbDeleteCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	if err := lib.DeleteKnowledgeBase(ctx, kb.Id); err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	fmt.Printf("Deleted knowledge base %d (%s)\n", kb.Id, kb.Name)
	return nil
}

func ingestCommand(c *cli.Context) error {
	lib, cfg, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	var text []byte
	contentPath := c.String("file")
	if contentPath != "" {
		text, err = os.ReadFile(contentPath)
	} else {
		text, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read document text: %w", err)
	}

	chunkCfg := cfg.ChunkConfig()
	if v := c.Int("chunk-size"); v > 0 {
		chunkCfg.Size = v
	}
	if c.IsSet("chunk-overlap") {
		chunkCfg.Overlap = c.Int("chunk-overlap")
	}

	pipeline, err := lib.NewIngestionPipeline(pipelineOptions(cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, kb.Id, c.String("title"), string(text), chunkCfg, &ingestion.IngestOptions{
		ContentPath: contentPath,
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingested document %d: %d chunks, %d vectorized (%s)\n",
		result.DocumentId, result.ChunkCount, result.VectorizedCount, result.Status)
	return nil
}

// pipelineOptions maps the config file's ingestion section onto pipeline options.
func pipelineOptions(cfg *config.AppConfig) []ingestion.Option {
	var opts []ingestion.Option
	if cfg.Ingestion.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if cfg.Ingestion.EmbedBatchSize > 0 {
		opts = append(opts, ingestion.WithEmbedBatchSize(cfg.Ingestion.EmbedBatchSize))
	}
	if cfg.Ingestion.MaxRetries > 0 {
		opts = append(opts, ingestion.WithRetryPolicy(
			cfg.Ingestion.MaxRetries,
			time.Duration(cfg.Ingestion.RetryDelaySecs)*time.Second,
		))
	}
	return opts
}

func docListCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	docs, err := lib.DocumentRepository().ListDocumentsByKnowledgeBase(ctx, kb.Id)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Printf("No documents in %s\n", kb.Name)
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%d\t%s\t%s\t%d/%d chunks vectorized\n",
			doc.Id, doc.Title, doc.Status, doc.VectorizedCount, doc.ChunkCount)
	}
	return nil
}

func docDeleteCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	id := core.ID(c.Uint64("id"))
	if err := lib.DeleteDocument(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	fmt.Printf("Deleted document %d\n", id)
	return nil
}

func docRechunkCommand(c *cli.Context) error {
	lib, cfg, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	chunkCfg := cfg.ChunkConfig()
	if v := c.Int("chunk-size"); v > 0 {
		chunkCfg.Size = v
	}
	if c.IsSet("chunk-overlap") {
		chunkCfg.Overlap = c.Int("chunk-overlap")
	}

	pipeline, err := lib.NewIngestionPipeline(pipelineOptions(cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.Rechunk(context.Background(), core.ID(c.Uint64("id")), chunkCfg)
	if err != nil {
		return fmt.Errorf("rechunk failed: %w", err)
	}

	fmt.Printf("Rechunked document %d: %d chunks, %d vectorized (%s)\n",
		result.DocumentId, result.ChunkCount, result.VectorizedCount, result.Status)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	lib, cfg, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	retriever, err := lib.NewRetriever()
	if err != nil {
		return err
	}

	searchCfg := cfg.SearchConfig()
	if k := c.Int("top-k"); k > 0 {
		searchCfg.TopK = k
	}

	result, err := retriever.Retrieve(ctx, kb.Id, query, searchCfg)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if result.Degraded {
		fmt.Println("(degraded: embedding service unavailable, lexical results only)")
	}
	fmt.Printf("Found %d passages\n", len(result.Passages))
	for i, passage := range result.Passages {
		fmt.Printf("%d: [%0.3f] %s #%d: %s\n",
			i, passage.Score, passage.DocumentTitle, passage.Ordinal, firstLine(passage.Contents))
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	lib, cfg, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	answerer, err := lib.NewAnswerer()
	if err != nil {
		return err
	}

	result, err := answerer.Ask(ctx, kb.Id, question, nil, cfg.AnswerConfig())
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if result.Degraded {
		fmt.Println("(degraded: embedding service unavailable, lexical retrieval only)")
	}
	fmt.Println(result.Text)
	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, citation := range result.Citations {
			fmt.Printf("  - %s #%d [%0.3f]\n", citation.DocumentTitle, citation.Ordinal, citation.Score)
		}
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	lib, _, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	kb, err := resolveKnowledgeBase(ctx, lib, c.String("kb"))
	if err != nil {
		return err
	}

	reindexConfig := &vectorize.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reindexer, err := lib.NewReindexer(reindexConfig, os.Stderr)
	if err != nil {
		return err
	}

	if err := reindexer.Run(ctx, kb.Id); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	const limit = 120
	runes := []rune(line)
	if len(runes) > limit {
		return string(runes[:limit]) + "…"
	}
	return line
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/docent"
	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
)

// seedDocuments is a small built-in corpus used when no source files are
// given, enough to exercise ingestion, hybrid search, and answering.
var seedDocuments = map[string]string{
	"Lighthouses": `Lighthouses guided sailors long before satellite navigation existed. A tall
tower with a rotating lamp marked dangerous coastlines, reefs, and harbor
entrances, each station flashing a distinct pattern so a navigator could tell
one light from another at night.

Keepers once lived beside the lamp year round, trimming wicks and winding the
clockwork that turned the lens. Fresnel lenses concentrated a modest flame
into a beam visible for twenty miles or more, an optical trick that made
small lights carry enormous distances.

Most lighthouses are automated now. Solar panels and long-lived LED lamps
replaced the keepers, but many towers still operate as active aids to
navigation, and their daymarks, the painted stripes and colors, remain on
nautical charts.`,

	"Honeybees": `A honeybee colony is a single organism in a practical sense. Tens of
thousands of workers coordinate foraging, brood care, and temperature control
without central direction, communicating through scent and the famous waggle
dance that encodes the bearing and distance of food.

Workers progress through jobs as they age: cleaning cells first, then feeding
larvae, building comb, guarding the entrance, and finally foraging. A queen
may lay well over a thousand eggs in a day during spring buildup.

Honey is the colony's winter fuel. Bees dehydrate nectar by fanning it with
their wings until it thickens, then cap the cell with wax. A strong hive can
store far more than it needs, which is the surplus beekeepers harvest.`,

	"Tide Pools": `Tide pools form where rocky shorelines trap seawater as the tide retreats.
The organisms living there endure hours of sun, rain, and crashing surf
between each high tide, making these pools some of the harshest habitats on
the coast.

Sea stars, anemones, hermit crabs, and mussels stratify themselves into
zones by their tolerance for exposure. The highest pools may only be
refreshed by storm waves, while the lowest are underwater most of the day.

Visitors are asked to step carefully and leave animals where they are; a
sea star pried from its rock rarely survives reattachment elsewhere.`,
}

var (
	dbPath  = flag.String("db", "./docent_db", "path to the library directory")
	kbName  = flag.String("kb", "sample", "knowledge base to create or reuse")
	offline = flag.Bool("offline", false, "use the deterministic mock embedder instead of a model endpoint")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	var opts []docent.LibraryOption
	if *offline {
		opts = append(opts, docent.WithProvider(mock.NewMockProvider()))
	}

	lib, err := docent.Open(*dbPath, opts...)
	if err != nil {
		panic(err)
	}
	defer lib.Close()

	ctx := context.Background()

	kb, err := lib.KnowledgeBaseRepository().GetKnowledgeBaseByName(ctx, *kbName)
	if err != nil {
		kb, err = lib.CreateKnowledgeBase(ctx, *kbName, "seeded sample corpus")
		if err != nil {
			panic(err)
		}
	}

	pipeline, err := lib.NewIngestionPipeline()
	if err != nil {
		panic(err)
	}
	defer pipeline.Release()

	cfg := core.ChunkConfig{Size: 400, Overlap: 80}

	if flag.NArg() > 0 {
		// Each argument is a text file ingested as one document.
		for _, path := range flag.Args() {
			text, err := os.ReadFile(path)
			if err != nil {
				panic(err)
			}
			title := filepath.Base(path)
			result, err := pipeline.Ingest(ctx, kb.Id, title, string(text), cfg, nil)
			if err != nil {
				panic(err)
			}
			slog.Info("seeded document", "title", title,
				"chunks", result.ChunkCount, "vectorized", result.VectorizedCount)
		}
		return
	}

	for title, text := range seedDocuments {
		result, err := pipeline.Ingest(ctx, kb.Id, title, text, cfg, nil)
		if err != nil {
			panic(err)
		}
		slog.Info("seeded document", "title", title,
			"chunks", result.ChunkCount, "vectorized", result.VectorizedCount)
	}
}

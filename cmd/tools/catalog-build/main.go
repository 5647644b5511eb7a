// Command catalog-build rebuilds the nearest-neighbour index from the
// reference vectors stored in the catalog database. Run it after probe
// captures or catalog edits; the daemon picks the new index up on its
// next start (or index reload).
package main

import (
	"context"
	"flag"
	"log"

	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/vecindex"
)

func main() {
	dbPath := flag.String("db-path", "lighting.db", "catalog database path")
	out := flag.String("o", "lighting.idx", "output index path")
	metric := flag.String("metric", vecindex.MetricAngular, "distance metric: angular or euclidean")
	numTrees := flag.Int("trees", 50, "tree count recorded in the sidecar")
	flag.Parse()

	db, err := catalog.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	songs, err := db.GetAllSongs(ctx)
	if err != nil {
		log.Fatalf("list songs: %v", err)
	}
	if len(songs) == 0 {
		log.Fatal("catalog has no songs; nothing to index")
	}

	var ix *vecindex.Index
	total := 0
	for _, song := range songs {
		vecs, err := db.GetReferenceVectors(ctx, song.ID)
		if err != nil {
			log.Fatalf("load vectors for %q: %v", song.Name, err)
		}
		if len(vecs) == 0 {
			continue
		}

		parts, err := db.GetSongParts(ctx, song.ID)
		if err != nil {
			log.Fatalf("load parts for %q: %v", song.Name, err)
		}

		for _, rv := range vecs {
			if ix == nil {
				ix, err = vecindex.New(len(rv.Features), *metric)
				if err != nil {
					log.Fatalf("create index: %v", err)
				}
			}
			if len(rv.Features) != ix.FeatureDim() {
				log.Fatalf("song %q segment %d: dim %d, index dim %d",
					song.Name, rv.SegmentIndex, len(rv.Features), ix.FeatureDim())
			}

			// One segment spans one bar; derive the position
			// coordinates the matcher augments queries with.
			bar := rv.SegmentIndex + 1
			aug := make([]float64, 0, ix.TotalDim())
			aug = append(aug, rv.Features...)
			aug = append(aug, float64(bar), 1, rv.Timestamp)

			meta := vecindex.Meta{
				SongID:       song.ID,
				SongTitle:    song.Name,
				SongPart:     partName(parts, rv.SegmentIndex),
				SegmentIndex: rv.SegmentIndex,
				Bar:          bar,
				BeatInBar:    1,
				TimestampSec: rv.Timestamp,
			}
			if _, err := ix.Add(aug, meta); err != nil {
				log.Fatalf("index song %q segment %d: %v", song.Name, rv.SegmentIndex, err)
			}
			total++
		}
		log.Printf("%q: %d segments", song.Name, len(vecs))
	}

	if ix == nil {
		log.Fatal("no reference vectors in catalog")
	}
	ix.Build(*numTrees)
	if err := ix.Save(*out); err != nil {
		log.Fatalf("save index: %v", err)
	}
	log.Printf("✓ %d vectors (dim %d, metric %s) written to %s", total, ix.FeatureDim(), ix.Metric(), *out)
}

func partName(parts []catalog.SongPart, segment int) string {
	for _, p := range parts {
		if segment >= p.StartSegment && segment <= p.EndSegment {
			return p.PartName
		}
	}
	return ""
}

package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/importer"
	"github.com/GideonNut/moviemeter/pkg/database"
	"github.com/GideonNut/moviemeter/pkg/models"
	"github.com/GideonNut/moviemeter/pkg/utils"
)

// One-shot catalog maintenance: pulls a provider listing into the local
// cache (or, with -retract, deletes recent imports) and exits. Intended for
// cron or manual seeding; the API server exposes the same operations under
// /admin.
func main() {
	kindFlag := flag.String("kind", "movie", "media kind: movie or tv")
	modeFlag := flag.String("mode", "trending", "provider listing: trending or search")
	termFlag := flag.String("term", "", "search term (search mode only)")
	pagesFlag := flag.Int("pages", 2, "provider pages to fetch")
	retractFlag := flag.Bool("retract", false, "retract recent imports instead of importing")
	windowFlag := flag.Duration("window", 0, "retraction window (default from config)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := utils.Load()

	kind := models.MediaKind(*kindFlag)
	if kind != models.KindMovie && kind != models.KindTV {
		log.Fatalf("unknown kind %q (want movie or tv)", *kindFlag)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	source := importer.NewTMDBSource(cfg.Provider)
	source.Pages = *pagesFlag

	svc := importer.NewService(catalog.NewRepo(db), source)

	if *retractFlag {
		window := *windowFlag
		if window == 0 {
			window = cfg.RetractionWindow
		}
		deleted, err := svc.Retract(ctx, kind, window)
		if err != nil {
			log.Fatalf("retract failed: %v", err)
		}
		log.Printf("retract done: kind=%s window=%s deleted=%d", kind, window, deleted)
		return
	}

	q := importer.Query{Mode: importer.QueryMode(*modeFlag), Term: *termFlag}
	if err := q.Validate(); err != nil {
		log.Fatalf("bad query: %v", err)
	}

	res, err := svc.Import(ctx, kind, q)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	log.Printf("import done: fetched=%d inserted=%d updated=%d skipped=%d",
		res.Fetched, res.Inserted, res.Updated, res.Skipped)
}

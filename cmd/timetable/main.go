package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gtfs-timetable/internal/builder"
	"gtfs-timetable/internal/config"
	"gtfs-timetable/internal/db"
	"gtfs-timetable/internal/feed"
	"gtfs-timetable/internal/metrics"
	"gtfs-timetable/internal/publisher"
	"gtfs-timetable/internal/render"
)

func main() {
	mode := flag.String("mode", "serve", "serve|oneshot")
	route := flag.String("route", "", "comma-separated route_ids (overrides ROUTE_FILTER)")
	format := flag.String("format", "table", "table|json|yaml (oneshot output)")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *route != "" {
		cfg.Routes = strings.Split(*route, ",")
	}
	outFormat, err := render.ParseFormat(*format)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, sqlDB, currentDBName := openSource(ctx, cfg)
	if sqlDB != nil {
		defer func() { sqlDB.Close() }()
	}

	opts := builder.Options{
		Workers:         cfg.Workers,
		Budget:          cfg.Budget(),
		Routes:          cfg.Routes,
		RefreshInterval: cfg.RefreshInterval,
	}

	switch *mode {
	case "oneshot":
		res, err := builder.NewManager(src, nil, opts, nil).BuildAll(ctx)
		if res == nil {
			log.Fatalf("build error: %v", err)
		}
		if err != nil {
			log.Printf("build finished with errors: %v", err)
		}
		for _, g := range res.Grids {
			if err := render.Write(os.Stdout, g, outFormat); err != nil {
				log.Fatalf("render %s: %v", g.Key, err)
			}
		}
		if err != nil {
			os.Exit(1)
		}
		return
	case "serve":
	default:
		log.Fatalf("unknown mode %q (want serve or oneshot)", *mode)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Workers, cfg.MaxStates, cfg.RefreshInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Initialize NATS publisher
	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	mgr := builder.NewManager(src, pub, opts, mcol)
	mgr.StartRefresher(ctx)

	// Watch for newer city imports every 30 minutes and rebuild against them
	var done chan struct{}
	if sqlDB != nil && cfg.City != "" {
		done = make(chan struct{})
		go func() {
			defer close(done)
			ticker := time.NewTicker(30 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}

				reason := ""
				if err := db.Ping(ctx, sqlDB); err != nil {
					log.Printf("db ping failed: %v, re-resolving city DB", err)
					reason = "ping_failure"
				}
				newDB, newName, err := db.OpenCity(ctx, cfg.DatabaseURL, cfg.City)
				if err != nil {
					log.Printf("resolve latest import error: %v", err)
					continue
				}
				if reason == "" && newName == currentDBName {
					newDB.Close()
					continue
				}
				if reason == "" {
					reason = "update"
					log.Printf("Detected updated DB for city %q: %q -> %q", cfg.City, currentDBName, newName)
				}
				if mcol != nil {
					mcol.DBSwitches.WithLabelValues(reason).Inc()
				}

				mgr.Stop()
				sqlDB.Close()
				sqlDB, currentDBName = newDB, newName
				log.Printf("Switched to DB %q for city %q", currentDBName, cfg.City)

				mgr = builder.NewManager(db.NewStore(sqlDB), pub, opts, mcol)
				mgr.StartRefresher(ctx)
			}
		}()
	}

	// Block until context cancelled
	<-ctx.Done()
	if done != nil {
		<-done
	}
	mgr.Stop()
	log.Println("shutdown complete")
}

// openSource picks the GTFS zip when configured, else the database named by
// CITY or the DSN.
func openSource(ctx context.Context, cfg *config.Config) (builder.Source, *sql.DB, string) {
	if cfg.GTFSZip != "" {
		s, err := feed.LoadFile(cfg.GTFSZip)
		if err != nil {
			log.Fatalf("gtfs zip: %v", err)
		}
		log.Printf("Using GTFS zip %s", cfg.GTFSZip)
		return s, nil, ""
	}
	if cfg.City != "" {
		conn, name, err := db.OpenCity(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Fatalf("open database for city %q: %v", cfg.City, err)
		}
		log.Printf("Using database %q for city %q", name, cfg.City)
		return db.NewStore(conn), conn, name
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(ctx, conn); err != nil {
		log.Fatalf("db ping error (%s): %v", db.Redact(cfg.DatabaseURL), err)
	}
	return db.NewStore(conn), conn, ""
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

// Package builder builds the timetable grid of every trip group of a source,
// in parallel, once or periodically.
package builder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cloudeng.io/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gtfs-timetable/internal/align"
	"gtfs-timetable/internal/gtfs"
	mmetrics "gtfs-timetable/internal/metrics"
	"gtfs-timetable/internal/scs"
	"gtfs-timetable/internal/timetable"
)

// Source supplies trip groups. Implemented by db.Store and feed.Static.
type Source interface {
	Groups(ctx context.Context, routes []string) ([]gtfs.GroupKey, error)
	TripStops(ctx context.Context, key gtfs.GroupKey) ([]gtfs.TripStops, error)
}

type Publisher interface {
	PublishTimetable(buildID string, g *timetable.Grid) error
}

type Options struct {
	Workers         int
	Budget          scs.Budget
	Routes          []string
	RefreshInterval time.Duration
}

// Result is the outcome of one build run. Grids follow the source's group
// order; groups that failed are missing.
type Result struct {
	BuildID  string
	Grids    []*timetable.Grid
	Started  time.Time
	Duration time.Duration
}

type Manager struct {
	src     Source
	pub     Publisher
	opts    Options
	engine  *scs.Engine[string]
	metrics *mmetrics.Collector
	build   func(gtfs.GroupKey, []gtfs.TripStops, *scs.Engine[string]) (*timetable.Grid, error)

	mu   sync.Mutex
	last *Result

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

// NewManager returns a manager reading from src. pub and metrics may be nil.
func NewManager(src Source, pub Publisher, opts Options, metrics *mmetrics.Collector) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Manager{
		src:     src,
		pub:     pub,
		opts:    opts,
		engine:  scs.New[string](opts.Budget),
		metrics: metrics,
		build:   timetable.Build,
	}
}

// Last returns the result of the latest completed run, or nil.
func (m *Manager) Last() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// BuildAll builds and publishes a grid per group. A failing group does not
// stop the others; all group failures are returned together alongside the
// grids that were built.
func (m *Manager) BuildAll(ctx context.Context) (*Result, error) {
	res := &Result{BuildID: uuid.NewString(), Started: time.Now()}
	keys, err := m.src.Groups(ctx, m.opts.Routes)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	grids := make([]*timetable.Grid, len(keys))
	errs := &errors.M{}
	var g errgroup.Group
	g.SetLimit(m.opts.Workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			grid, err := m.buildGroup(ctx, key)
			if err != nil {
				errs.Append(err)
				return nil
			}
			grids[i] = grid
			if m.pub != nil {
				if err := m.pub.PublishTimetable(res.BuildID, grid); err != nil {
					errs.Append(fmt.Errorf("publish %s: %w", key, err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, grid := range grids {
		if grid != nil {
			res.Grids = append(res.Grids, grid)
		}
	}
	res.Duration = time.Since(res.Started)
	if m.metrics != nil {
		m.metrics.BuildDuration.Observe(res.Duration.Seconds())
		m.metrics.LastGroups.Set(float64(len(res.Grids)))
	}
	log.Printf("build %s: %d/%d groups in %s", res.BuildID, len(res.Grids), len(keys), res.Duration.Round(time.Millisecond))

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()
	return res, errs.Err()
}

func (m *Manager) buildGroup(ctx context.Context, key gtfs.GroupKey) (*timetable.Grid, error) {
	trips, err := m.src.TripStops(ctx, key)
	if err != nil {
		m.countError("source")
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	start := time.Now()
	grid, err := m.build(key, trips, m.engine)
	if err != nil {
		switch {
		case errors.Is(err, align.ErrIntegrity):
			// The supersequence and the failing trip are part of the message.
			log.Printf("alignment integrity error for %s, group dropped: %v", key, err)
			m.countError("integrity")
		case errors.Is(err, timetable.ErrInvalidInput):
			log.Printf("invalid trips in %s: %v", key, err)
			m.countError("invalid")
		default:
			m.countError("other")
		}
		return nil, err
	}
	elapsed := time.Since(start)
	if m.metrics != nil {
		m.metrics.GroupsBuilt.Inc()
		m.metrics.AlignDuration.Observe(elapsed.Seconds())
		m.metrics.StatesExplored.Observe(float64(grid.Stats.States))
	}
	if grid.Partial {
		log.Printf("warning: %s: %s", key, grid.Warning)
		if m.metrics != nil {
			m.metrics.PartialViews.Inc()
		}
	}
	return grid, nil
}

func (m *Manager) countError(reason string) {
	if m.metrics != nil {
		m.metrics.BuildErrors.WithLabelValues(reason).Inc()
	}
}

// StartRefresher launches a background loop that rebuilds every group right
// away and then once per refresh interval.
func (m *Manager) StartRefresher(parent context.Context) {
	if m.opts.RefreshInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.refreshCancel = cancel
	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		m.refresh(ctx)
		ticker := time.NewTicker(m.opts.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

func (m *Manager) refresh(ctx context.Context) {
	if _, err := m.BuildAll(ctx); err != nil && ctx.Err() == nil {
		log.Printf("build error: %v", err)
	}
}

// Stop cancels the refresher and waits for a running build to finish.
func (m *Manager) Stop() {
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.refreshWG.Wait()
}

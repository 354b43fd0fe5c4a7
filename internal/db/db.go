package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gtfs-timetable/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store reads trip groups and their stop times from a GTFS database laid out
// by postgis-gtfs-importer.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Groups lists the (route, service, direction) groups found in trips,
// restricted to routes when routes is not empty.
func (s *Store) Groups(ctx context.Context, routes []string) ([]gtfs.GroupKey, error) {
	q := `
SELECT DISTINCT route_id, service_id, COALESCE(direction_id::text, '')
FROM trips
WHERE cardinality($1::text[]) = 0 OR route_id = ANY($1::text[])
ORDER BY 1, 2, 3`
	if routes == nil {
		routes = []string{}
	}
	rows, err := s.db.QueryContext(ctx, q, routes)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	var keys []gtfs.GroupKey
	for rows.Next() {
		var k gtfs.GroupKey
		if err := rows.Scan(&k.RouteID, &k.ServiceID, &k.DirectionID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type stopTimeRow struct {
	TripID       string
	Headsign     string
	StopSequence int
	StopID       string
	Arrival      string
	Departure    string
}

// TripStops returns every trip of the group with its stop times ordered by
// stop_sequence.
func (s *Store) TripStops(ctx context.Context, key gtfs.GroupKey) ([]gtfs.TripStops, error) {
	q := `
SELECT t.trip_id,
       COALESCE(t.trip_headsign, ''),
       st.stop_sequence,
       st.stop_id,
       COALESCE(st.arrival_time::text, ''),
       COALESCE(st.departure_time::text, '')
FROM trips t
JOIN stop_times st ON st.trip_id = t.trip_id
WHERE t.route_id = $1 AND t.service_id = $2 AND COALESCE(t.direction_id::text, '') = $3
ORDER BY t.trip_id, st.stop_sequence`
	rows, err := s.db.QueryContext(ctx, q, key.RouteID, key.ServiceID, key.DirectionID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times for %s: %w", key, err)
	}
	defer rows.Close()
	var recs []stopTimeRow
	for rows.Next() {
		var r stopTimeRow
		if err := rows.Scan(&r.TripID, &r.Headsign, &r.StopSequence, &r.StopID, &r.Arrival, &r.Departure); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupRows(key, recs), nil
}

// groupRows folds rows sorted by trip_id, stop_sequence into trips.
func groupRows(key gtfs.GroupKey, recs []stopTimeRow) []gtfs.TripStops {
	var trips []gtfs.TripStops
	for _, r := range recs {
		if len(trips) == 0 || trips[len(trips)-1].TripID != r.TripID {
			trips = append(trips, gtfs.TripStops{Trip: gtfs.Trip{
				TripID:      r.TripID,
				RouteID:     key.RouteID,
				ServiceID:   key.ServiceID,
				DirectionID: key.DirectionID,
				Headsign:    r.Headsign,
			}})
		}
		st := gtfs.StopTime{StopSequence: r.StopSequence, StopID: r.StopID}
		st.ArrivalSec, st.HasArrival = gtfs.ParseDaySeconds(r.Arrival)
		st.DepartureSec, st.HasDeparture = gtfs.ParseDaySeconds(r.Departure)
		cur := &trips[len(trips)-1]
		cur.StopTimes = append(cur.StopTimes, st)
	}
	return trips
}

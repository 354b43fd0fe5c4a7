package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gtfs-timetable/internal/gtfs"
	"gtfs-timetable/internal/timetable"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("gtfs-timetable"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// TimetableMessage is the JSON payload published for one group. Stops lists
// the merged stop order; each trip carries one cell per stop, null where the
// trip does not stop.
type TimetableMessage struct {
	BuildID     string        `json:"buildId"`
	RouteID     string        `json:"routeId"`
	ServiceID   string        `json:"serviceId"`
	DirectionID string        `json:"directionId"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Partial     bool          `json:"partial"`
	Warning     string        `json:"warning,omitempty"`
	Stops       []string      `json:"stops"`
	Trips       []TripMessage `json:"trips"`
}

type TripMessage struct {
	TripID   string         `json:"tripId"`
	Headsign string         `json:"headsign,omitempty"`
	Cells    []*CellMessage `json:"cells"`
}

type CellMessage struct {
	StopSequence int    `json:"stopSequence"`
	Arrival      string `json:"arrival,omitempty"`
	Departure    string `json:"departure,omitempty"`
}

// NewTimetableMessage lays g out as a message.
func NewTimetableMessage(buildID string, g *timetable.Grid, at time.Time) TimetableMessage {
	msg := TimetableMessage{
		BuildID:     buildID,
		RouteID:     g.Key.RouteID,
		ServiceID:   g.Key.ServiceID,
		DirectionID: g.Key.DirectionID,
		GeneratedAt: at,
		Partial:     g.Partial,
		Warning:     g.Warning,
		Stops:       g.Stops,
		Trips:       make([]TripMessage, g.Cols()),
	}
	for col := range msg.Trips {
		trip := g.Trip(col)
		tm := TripMessage{TripID: trip.TripID, Headsign: trip.Headsign, Cells: make([]*CellMessage, g.Rows())}
		for row := range tm.Cells {
			st, ok := g.Cell(row, col)
			if !ok {
				continue
			}
			c := &CellMessage{StopSequence: st.StopSequence}
			if st.HasArrival {
				c.Arrival = gtfs.FormatDaySeconds(st.ArrivalSec)
			}
			if st.HasDeparture {
				c.Departure = gtfs.FormatDaySeconds(st.DepartureSec)
			}
			tm.Cells[row] = c
		}
		msg.Trips[col] = tm
	}
	return msg
}

// Subject returns <prefix>.<route>.<service>.<direction>, with the empty
// direction published as "_".
func Subject(prefix string, key gtfs.GroupKey) string {
	return fmt.Sprintf("%s.%s.%s.%s", prefix, subjectToken(key.RouteID), subjectToken(key.ServiceID), subjectToken(key.DirectionID))
}

func (p *NATSPublisher) PublishTimetable(buildID string, g *timetable.Grid) error {
	subject := Subject(p.prefix, g.Key)
	b, err := json.Marshal(NewTimetableMessage(buildID, g, time.Now().UTC()))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s bytes=%d", subject, len(b))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

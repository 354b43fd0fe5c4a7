// Package render prints a timetable grid for people: as a text table, or as
// JSON or YAML with one entry per stop row.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"gtfs-timetable/internal/gtfs"
	"gtfs-timetable/internal/timetable"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Write renders g to w in format f.
func Write(w io.Writer, g *timetable.Grid, f Format) error {
	switch f {
	case FormatTable:
		_, err := io.WriteString(w, Table(g)+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(g))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(g)); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", f)
}

const noStop = "-"

// Table lays g out with a row per stop and a column per trip.
func Table(g *timetable.Grid) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("%s", g.Key)

	header := make(table.Row, g.Cols()+1)
	header[0] = "Stop"
	for col := 0; col < g.Cols(); col++ {
		header[col+1] = g.Trip(col).TripID
	}
	tw.AppendHeader(header)

	for row := 0; row < g.Rows(); row++ {
		r := make(table.Row, g.Cols()+1)
		r[0] = g.Stops[row]
		for col := 0; col < g.Cols(); col++ {
			r[col+1] = cellText(g, row, col, noStop)
		}
		tw.AppendRow(r)
	}

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for col := 0; col < g.Cols(); col++ {
		configs = append(configs, table.ColumnConfig{Number: col + 2, Align: text.AlignRight, AlignHeader: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	if g.Partial {
		tw.SetCaption("warning: %s", g.Warning)
	}
	return tw.Render()
}

// cellText shows the departure, the arrival when there is no departure, and
// both when they differ.
func cellText(g *timetable.Grid, row, col int, empty string) string {
	st, ok := g.Cell(row, col)
	if !ok {
		return empty
	}
	switch {
	case st.HasArrival && st.HasDeparture && st.ArrivalSec != st.DepartureSec:
		return gtfs.FormatDaySeconds(st.ArrivalSec) + "/" + gtfs.FormatDaySeconds(st.DepartureSec)
	case st.HasDeparture:
		return gtfs.FormatDaySeconds(st.DepartureSec)
	case st.HasArrival:
		return gtfs.FormatDaySeconds(st.ArrivalSec)
	}
	return empty
}

type document struct {
	RouteID     string   `json:"routeId" yaml:"route_id"`
	ServiceID   string   `json:"serviceId" yaml:"service_id"`
	DirectionID string   `json:"directionId" yaml:"direction_id"`
	Partial     bool     `json:"partial" yaml:"partial"`
	Warning     string   `json:"warning,omitempty" yaml:"warning,omitempty"`
	Trips       []string `json:"trips" yaml:"trips"`
	Rows        []docRow `json:"rows" yaml:"rows"`
}

type docRow struct {
	Stop  string   `json:"stop" yaml:"stop"`
	Times []string `json:"times" yaml:"times"`
}

func newDocument(g *timetable.Grid) document {
	d := document{
		RouteID:     g.Key.RouteID,
		ServiceID:   g.Key.ServiceID,
		DirectionID: g.Key.DirectionID,
		Partial:     g.Partial,
		Warning:     g.Warning,
		Trips:       make([]string, g.Cols()),
		Rows:        make([]docRow, g.Rows()),
	}
	for col := range d.Trips {
		d.Trips[col] = g.Trip(col).TripID
	}
	for row := range d.Rows {
		r := docRow{Stop: g.Stops[row], Times: make([]string, g.Cols())}
		for col := range r.Times {
			r.Times[col] = cellText(g, row, col, "")
		}
		d.Rows[row] = r
	}
	return d
}

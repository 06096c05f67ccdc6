package airspace

import (
	"encoding/json"
	"time"

	"github.com/electronfraud/airplane-thing/tracktable"
)

// Aircraft is the per-target element of the snapshot payload. Scalar fields
// that may genuinely be unknown are pointers, so viewers can tell "zero" from
// "absent".
type Aircraft struct {
	IcaoAddress string  `json:"icao_address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`

	Callsign      string `json:"callsign,omitempty"`
	Squawk        string `json:"squawk,omitempty"`
	Altitude      *int64 `json:"altitude,omitempty"`
	GroundSpeed   *int64 `json:"ground_speed,omitempty"`
	Track         *int64 `json:"track,omitempty"`
	VerticalSpeed *int64 `json:"vertical_speed,omitempty"`

	DataBlock     string     `json:"data_block"`
	TargetType    TargetType `json:"target_type"`
	Emergency     bool       `json:"emergency"`
	HasFlightPlan bool       `json:"has_flight_plan"`
}

// Breadcrumbs is the recent trail for one target, oldest first.
type Breadcrumbs struct {
	IcaoAddress string     `json:"icao_address"`
	Positions   []Position `json:"positions"`
}

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Snapshot is one broadcast payload.
type Snapshot struct {
	Aircraft    []Aircraft    `json:"aircraft"`
	Breadcrumbs []Breadcrumbs `json:"breadcrumbs"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// BuildSnapshot derives the viewer payload from a table snapshot. Tracks with
// no resolved position are omitted; there's nothing to draw.
func BuildSnapshot(tracks []tracktable.Track) Snapshot {
	snap := Snapshot{
		Aircraft:    []Aircraft{},
		Breadcrumbs: []Breadcrumbs{},
		GeneratedAt: time.Now().UTC(),
	}

	for _, tr := range tracks {
		if !tr.Position.Valid() {
			continue
		}
		pos := tr.Position.Value()

		ac := Aircraft{
			IcaoAddress:   string(tr.Icao24),
			Latitude:      pos.Lat,
			Longitude:     pos.Long,
			Callsign:      tr.Callsign.Value(),
			Squawk:        tr.Squawk.Value(),
			DataBlock:     DataBlock(tr),
			TargetType:    Classify(tr),
			Emergency:     tr.Squawk.Valid() && IsEmergency(tr.Squawk.Value()),
			HasFlightPlan: tr.FlightPlan != nil,
		}
		if tr.Altitude.Valid() {
			v := tr.Altitude.Value()
			ac.Altitude = &v
		}
		if tr.GroundSpeed.Valid() {
			v := tr.GroundSpeed.Value()
			ac.GroundSpeed = &v
		}
		if tr.Heading.Valid() {
			v := tr.Heading.Value()
			ac.Track = &v
		}
		if tr.VerticalRate.Valid() {
			v := tr.VerticalRate.Value()
			ac.VerticalSpeed = &v
		}
		snap.Aircraft = append(snap.Aircraft, ac)

		if len(tr.Trail) > 0 {
			bc := Breadcrumbs{IcaoAddress: string(tr.Icao24)}
			for _, tp := range tr.Trail {
				bc.Positions = append(bc.Positions, Position{Latitude: tp.Lat, Longitude: tp.Long})
			}
			snap.Breadcrumbs = append(snap.Breadcrumbs, bc)
		}
	}

	return snap
}

// Marshal renders the payload; every viewer gets these same bytes.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

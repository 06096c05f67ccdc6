// Package swim ingests flight plan data from the FAA's SWIM feed. The feed
// arrives as FIXM MessageCollection XML documents on a pub/sub subscription;
// each document bundles updates for many flights. We keep only the handful of
// fields the display needs.
package swim

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skypies/adsb"
)

// FlightPlan is what we retain from one ACTIVE flight entry.
type FlightPlan struct {
	Icao24           adsb.IcaoId // empty when the plan carries no address
	Callsign         string
	Registration     string
	AircraftType     string // ICAO model, e.g. B738
	WakeCategory     string
	Cid              string // the NAS computer id
	Departure        string
	Arrival          string
	Route            string
	AssignedAltitude int64 // feet; zero when not filed
	Received         time.Time
}

func (fp FlightPlan)String() string {
	return fmt.Sprintf("%s/%s %s-%s @%d", fp.Callsign, fp.Icao24, fp.Departure,
		fp.Arrival, fp.AssignedAltitude)
}

// The XML shapes below only name the parts we read; encoding/xml skips the
// rest. FIXM qualifies everything with namespaces, but matching on local
// names is enough here.

type xmlCollection struct {
	XMLName  xml.Name `xml:"MessageCollection"`
	Messages []struct {
		Flight xmlFlight `xml:"flight"`
	} `xml:"message"`
}

type xmlFlight struct {
	Status struct {
		Fdps string `xml:"fdpsFlightStatus,attr"`
	} `xml:"flightStatus"`
	Ident struct {
		AircraftIdentification string `xml:"aircraftIdentification,attr"`
		ComputerId             string `xml:"computerId,attr"`
	} `xml:"flightIdentification"`
	Aircraft struct {
		Address        string `xml:"aircraftAddress,attr"`
		Registration   string `xml:"registration,attr"`
		WakeTurbulence string `xml:"wakeTurbulence,attr"`
		Type           struct {
			IcaoModelIdentifier string `xml:"icaoModelIdentifier"`
		} `xml:"aircraftType"`
	} `xml:"aircraftDescription"`
	Departure struct {
		Point string `xml:"departurePoint,attr"`
	} `xml:"departure"`
	Arrival struct {
		Point string `xml:"arrivalPoint,attr"`
	} `xml:"arrival"`
	Agreed struct {
		Route struct {
			NasRouteText string `xml:"nasRouteText,attr"`
		} `xml:"route"`
	} `xml:"agreed"`
	AssignedAltitude struct {
		Simple string `xml:"simple"`
	} `xml:"assignedAltitude"`
}

// ParseMessageCollection extracts the ACTIVE flight plans from one FIXM
// document. Entries that are not ACTIVE, or that carry no identity at all (no
// address, callsign or registration), are skipped; that's routine, not an
// error. A document that isn't a MessageCollection at all is an error.
func ParseMessageCollection(data []byte, received time.Time) ([]FlightPlan, error) {
	var doc xmlCollection
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("swim: bad document: %v", err)
	}

	out := []FlightPlan{}
	for _, msg := range doc.Messages {
		fl := msg.Flight
		if fl.Status.Fdps != "ACTIVE" {
			continue
		}

		fp := FlightPlan{
			Icao24:       adsb.IcaoId(strings.ToUpper(fl.Aircraft.Address)),
			Callsign:     strings.TrimSpace(fl.Ident.AircraftIdentification),
			Registration: fl.Aircraft.Registration,
			AircraftType: strings.TrimSpace(fl.Aircraft.Type.IcaoModelIdentifier),
			WakeCategory: fl.Aircraft.WakeTurbulence,
			Cid:          fl.Ident.ComputerId,
			Departure:    fl.Departure.Point,
			Arrival:      fl.Arrival.Point,
			Route:        fl.Agreed.Route.NasRouteText,
			Received:     received,
		}
		if fp.Icao24 == "" && fp.Callsign == "" && fp.Registration == "" {
			continue
		}

		// Altitudes come through as strings like "11000.0".
		if s := strings.TrimSpace(fl.AssignedAltitude.Simple); s != "" {
			s = strings.TrimSuffix(s, ".0")
			if alt, err := strconv.ParseInt(s, 10, 64); err == nil {
				fp.AssignedAltitude = alt
			}
		}

		out = append(out, fp)
	}

	return out, nil
}

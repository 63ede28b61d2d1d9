package models

import (
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Request statuses as persisted in stop_requests.status.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	DefaultStopName = "Fermata"
	NewStopName     = "Nuova fermata"
)

// Point is a (lat, lon) pair. The route engine treats it as a planar
// coordinate, so distances between points are Euclidean on the raw degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}

// OrbPoint returns the point in orb's (x=lon, y=lat) order.
func (p Point) OrbPoint() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PointFromOrb converts an orb (lon, lat) point.
func PointFromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// Stop is one entry of a rendered route. Stops are built fresh for every
// sequence and never patched in place.
type Stop struct {
	Point
	Name       string `json:"name"`
	IsNew      bool   `json:"is_new"`
	IsApproved bool   `json:"is_approved"`
}

// NativeStop is a stop of a line as read from the geodata source, before ordering.
type NativeStop struct {
	Point
	Name string
}

// LineGeometry holds the raw path segments of one line.
type LineGeometry struct {
	LineCode string
	Paths    []orb.LineString
}

// StopRequest is a citizen proposal for a new stop.
type StopRequest struct {
	ID            int64     `json:"id"`
	LineCode      string    `json:"line_code"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Note          string    `json:"note"`
	PreferredDays string    `json:"preferred_days"`
	PreferredTime string    `json:"preferred_time"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Point returns the requested location.
func (r StopRequest) Point() Point {
	return Point{Lat: r.Lat, Lon: r.Lon}
}

// Pending returns the read-only view used by the clusterer.
func (r StopRequest) Pending() PendingRequest {
	return PendingRequest{
		ID:       r.ID,
		LineCode: r.LineCode,
		Point:    r.Point(),
		Note:     r.Note,
	}
}

// PendingRequest is the clusterer's input.
type PendingRequest struct {
	ID       int64
	LineCode string
	Point    Point
	Note     string
}

// ApprovedStop is a persisted approval. InsertAfter indexes the native
// sequence of the line; nil means the stop is appended.
type ApprovedStop struct {
	ID          int64     `json:"id"`
	LineCode    string    `json:"line_code"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	InsertAfter *int      `json:"insert_after"`
	ApprovedAt  time.Time `json:"approved_at"`
	RequestID   *int64    `json:"request_id,omitempty"`
}

// Point returns the approved location.
func (a ApprovedStop) Point() Point {
	return Point{Lat: a.Lat, Lon: a.Lon}
}

// Cluster summarises nearby pending requests of one line.
type Cluster struct {
	Point
	LineCode  string   `json:"line_code"`
	MemberIDs []int64  `json:"request_ids"`
	Notes     []string `json:"notes"`
	Count     int      `json:"count"`
}

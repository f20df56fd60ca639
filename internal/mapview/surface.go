package mapview

import (
	"context"
	"time"
)

// View is the initial centre and zoom of a new map.
type View struct {
	Lat  float64
	Lng  float64
	Zoom int
}

// DefaultView centres on Surabaya.
var DefaultView = View{Lat: -7.2575, Lng: 112.7521, Zoom: 12}

// Container is the mount point a map is bound to.
type Container interface {
	// Attached reports whether the container is still part of the live view.
	Attached() bool
}

// MarkerLayer holds the placed markers of a map.
type MarkerLayer interface {
	Clear()
	Add(m Marker) error
}

// Map is a bound map instance.
type Map interface {
	Container() Container
	InvalidateSize()
	Markers() MarkerLayer
}

// Surface creates maps. Load prepares the map library and is called once.
type Surface interface {
	Load(ctx context.Context) error
	Container() Container
	NewMap(c Container, v View) (Map, error)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

package mapview

import (
	"context"
	"sync"
)

// GeoJSONSurface is a headless surface: its maps hold markers as GeoJSON
// features that the HTTP API serves to the front-ends.
type GeoJSONSurface struct {
	mu        sync.Mutex
	container *mount
	current   *GeoJSONMap
	loads     int
	created   int
}

// NewGeoJSONSurface creates a surface with one attached container.
func NewGeoJSONSurface() *GeoJSONSurface {
	return &GeoJSONSurface{container: &mount{attached: true}}
}

func (s *GeoJSONSurface) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return ctx.Err()
}

func (s *GeoJSONSurface) Container() Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container
}

func (s *GeoJSONSurface) NewMap(c Container, v View) (Map, error) {
	m := &GeoJSONMap{container: c, view: v, layer: &FeatureLayer{}}
	s.mu.Lock()
	s.current = m
	s.created++
	s.mu.Unlock()
	return m, nil
}

// Detach tears down the current container and mounts a fresh one.
func (s *GeoJSONSurface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.container.detach()
	s.container = &mount{attached: true}
}

// Features returns the marker layer of the newest map.
func (s *GeoJSONSurface) Features() FeatureCollection {
	s.mu.Lock()
	m := s.current
	s.mu.Unlock()
	if m == nil {
		return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	}
	return m.layer.Collection()
}

// MapsCreated counts NewMap calls.
func (s *GeoJSONSurface) MapsCreated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

type mount struct {
	mu       sync.Mutex
	attached bool
}

func (c *mount) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *mount) detach() {
	c.mu.Lock()
	c.attached = false
	c.mu.Unlock()
}

// GeoJSONMap is a map bound to a container.
type GeoJSONMap struct {
	container   Container
	view        View
	layer       *FeatureLayer
	mu          sync.Mutex
	invalidated int
}

func (m *GeoJSONMap) Container() Container { return m.container }

func (m *GeoJSONMap) InvalidateSize() {
	m.mu.Lock()
	m.invalidated++
	m.mu.Unlock()
}

func (m *GeoJSONMap) Markers() MarkerLayer { return m.layer }

// View returns the initial view.
func (m *GeoJSONMap) View() View { return m.view }

// FeatureLayer stores markers as GeoJSON features.
type FeatureLayer struct {
	mu       sync.RWMutex
	features []Feature
}

func (l *FeatureLayer) Clear() {
	l.mu.Lock()
	l.features = nil
	l.mu.Unlock()
}

func (l *FeatureLayer) Add(m Marker) error {
	f, err := ToFeature(m)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.features = append(l.features, f)
	l.mu.Unlock()
	return nil
}

// Collection returns a copy of the layer.
func (l *FeatureLayer) Collection() FeatureCollection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	features := make([]Feature, len(l.features))
	copy(features, l.features)
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

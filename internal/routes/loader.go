// Package routes loads the named coordinate sequences buses drive along.
package routes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"bus-tracker/internal/position"
)

// Route is a named, ordered sequence of coordinates. Routes are read once
// at startup and shared read-only by every bus on them.
type Route struct {
	Name        string
	Coordinates []position.Coordinate
}

// routeFile is the layout of a *.json route: coordinates are [lat, lng].
type routeFile struct {
	Name        string       `json:"name"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// LoadDir reads every *.json and *.geojson route in dir, in file name order.
func LoadDir(dir string) ([]Route, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read routes dir %s: %w", dir, err)
	}

	var out []Route
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var loaded []Route
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json":
			loaded, err = loadJSON(path)
		case ".geojson":
			loaded, err = loadGeoJSON(path)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, loaded...)
	}
	return out, nil
}

func loadJSON(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf routeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse route %s: %w", path, err)
	}
	if rf.Name == "" {
		rf.Name = baseName(path)
	}
	coords := make([]position.Coordinate, 0, len(rf.Coordinates))
	for _, c := range rf.Coordinates {
		coords = append(coords, position.Coordinate{Lat: c[0], Lng: c[1]})
	}
	return []Route{{Name: rf.Name, Coordinates: coords}}, nil
}

// loadGeoJSON accepts a single Feature or a FeatureCollection; every
// LineString feature becomes a route named after its "name" property.
func loadGeoJSON(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var features []*geojson.Feature
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		features = fc.Features
	} else {
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse geojson route %s: %w", path, err)
		}
		features = []*geojson.Feature{f}
	}

	var out []Route
	for i, f := range features {
		if f.Geometry == nil || !f.Geometry.IsLineString() {
			continue
		}
		name, err := f.PropertyString("name")
		if err != nil || name == "" {
			name = fmt.Sprintf("%s-%d", baseName(path), i)
		}
		coords := make([]position.Coordinate, 0, len(f.Geometry.LineString))
		for _, p := range f.Geometry.LineString {
			if len(p) < 2 {
				continue
			}
			// GeoJSON positions are [lng, lat]
			coords = append(coords, position.Coordinate{Lat: p[1], Lng: p[0]})
		}
		out = append(out, Route{Name: name, Coordinates: coords})
	}
	return out, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

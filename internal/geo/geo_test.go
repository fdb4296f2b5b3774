package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceM(t *testing.T) {
	london := Point{Lat: 51.5074, Lng: -0.1278}
	paris := Point{Lat: 48.8566, Lng: 2.3522}

	// ~344 km between the city centres.
	d := DistanceM(london, paris)
	assert.InDelta(t, 344000, d, 2000)

	assert.Zero(t, DistanceM(london, london))
}

func TestPolygonContains(t *testing.T) {
	site := Polygon{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}

	assert.True(t, site.Contains(Point{Lat: 5, Lng: 5}))
	assert.False(t, site.Contains(Point{Lat: 15, Lng: 5}))
	assert.False(t, site.Contains(Point{Lat: 5, Lng: -1}))
}

func TestPolygonContains_Degenerate(t *testing.T) {
	assert.False(t, Polygon{}.Contains(Point{}))
	assert.False(t, Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}.Contains(Point{Lat: 1.5, Lng: 1.5}))
}

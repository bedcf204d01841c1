// README: Identifier and location value objects.
package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type ID string

// NewID returns a random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Location is an opaque place reference: an address, a landmark name or a "lat,lng" pair.
type Location string

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Location renders the point as a resolvable "lat,lng" location.
func (p Point) Location() Location {
	return Location(p.String())
}

// ParsePoint resolves "lat,lng" locations. Anything else is not a coordinate.
func ParsePoint(loc Location) (Point, bool) {
	parts := strings.Split(string(loc), ",")
	if len(parts) != 2 {
		return Point{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

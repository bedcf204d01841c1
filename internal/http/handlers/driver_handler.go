// README: Driver handlers for registration, availability, location and nearby search.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

// NearbyFinder searches mirrored driver positions.
type NearbyFinder interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type DriverHandler struct {
	pool   *driver.Pool
	nearby NearbyFinder
}

// NewDriverHandler accepts a nil finder; nearby search then answers 503.
func NewDriverHandler(pool *driver.Pool, nearby NearbyFinder) *DriverHandler {
	return &DriverHandler{pool: pool, nearby: nearby}
}

type registerDriverReq struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	VehicleNumber string  `json:"vehicle_number"`
	VehicleClass  string  `json:"vehicle_class"`
	Location      string  `json:"location"`
	Rating        float64 `json:"rating"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if !bindJSON(c, &req) {
		return
	}
	if req.ID != "" && !isValidID(req.ID) {
		writeMessage(c, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.pool.Register(c.Request.Context(), driver.RegisterCommand{
		ID:            types.ID(req.ID),
		Name:          req.Name,
		Phone:         req.Phone,
		VehicleNumber: req.VehicleNumber,
		VehicleClass:  fare.VehicleClass(req.VehicleClass),
		Location:      types.Location(req.Location),
		Rating:        req.Rating,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.pool.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type locationReq struct {
	Location string   `json:"location"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	loc := types.Location(req.Location)
	if req.Lat != nil && req.Lng != nil {
		loc = types.Point{Lat: *req.Lat, Lng: *req.Lng}.Location()
	}
	if err := h.pool.UpdateLocation(c.Request.Context(), id, loc); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"id": id, "location": loc})
}

// OnDuty and OffDuty only toggle the duty flag. Availability belongs to the ride lifecycle.
func (h *DriverHandler) OnDuty(c *gin.Context) {
	h.setDuty(c, true)
}

func (h *DriverHandler) OffDuty(c *gin.Context) {
	h.setDuty(c, false)
}

func (h *DriverHandler) setDuty(c *gin.Context, onDuty bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.pool.SetDuty(c.Request.Context(), id, onDuty); err != nil {
		writeError(c, err)
		return
	}
	d, err := h.pool.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) Nearby(c *gin.Context) {
	if h.nearby == nil {
		writeMessage(c, http.StatusServiceUnavailable, "nearby search needs the redis mirror")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeMessage(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p, ok := types.ParsePoint(types.Point{Lat: lat, Lng: lng}.Location())
	if !ok {
		writeMessage(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	radius := 2.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeMessage(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}

	ids, err := h.nearby.Nearby(c.Request.Context(), p, radius)
	if err != nil {
		writeError(c, err)
		return
	}
	drivers := make([]driver.Driver, 0, len(ids))
	for _, id := range ids {
		d, err := h.pool.Get(id)
		if err != nil {
			continue
		}
		drivers = append(drivers, *d)
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}

// README: Fare handlers for quotes and tariff updates.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/geo"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

// RateSaver persists tariff changes so they survive a restart.
type RateSaver interface {
	SaveRate(ctx context.Context, class fare.VehicleClass, r fare.Rate) error
}

type FareHandler struct {
	fares  *fare.Engine
	oracle geo.Oracle
	saver  RateSaver
}

func NewFareHandler(fares *fare.Engine, oracle geo.Oracle, saver RateSaver) *FareHandler {
	return &FareHandler{fares: fares, oracle: oracle, saver: saver}
}

type quoteReq struct {
	VehicleClass string   `json:"vehicle_class"`
	RiderRole    string   `json:"rider_role"`
	Shared       bool     `json:"shared"`
	DistanceKm   *float64 `json:"distance_km"`
	Pickup       string   `json:"pickup"`
	Dropoff      string   `json:"dropoff"`
}

// Quote prices a trip from an explicit distance, or from the route between pickup and dropoff.
func (h *FareHandler) Quote(c *gin.Context) {
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}
	class, err := fare.ParseVehicleClass(req.VehicleClass)
	if err != nil {
		writeError(c, err)
		return
	}
	role, err := fare.ParseRiderRole(req.RiderRole)
	if err != nil {
		writeError(c, err)
		return
	}

	var km float64
	switch {
	case req.DistanceKm != nil:
		km = *req.DistanceKm
	case req.Pickup != "" && req.Dropoff != "":
		route, err := h.oracle.RouteInfo(c.Request.Context(), types.Location(req.Pickup), types.Location(req.Dropoff))
		if err != nil {
			writeError(c, err)
			return
		}
		km = route.DistanceKm
	default:
		writeMessage(c, http.StatusBadRequest, "distance_km or pickup and dropoff are required")
		return
	}

	amount, err := h.fares.Quote(km, class, role, req.Shared)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"vehicle_class": class,
		"rider_role":    role,
		"shared":        req.Shared,
		"distance_km":   km,
		"fare":          amount,
	})
}

func (h *FareHandler) Rates(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.fares.Rates())
}

func (h *FareHandler) SetRate(c *gin.Context) {
	class, err := fare.ParseVehicleClass(c.Param("class"))
	if err != nil {
		writeError(c, err)
		return
	}
	var r fare.Rate
	if !bindJSON(c, &r) {
		return
	}
	if h.saver != nil {
		if err := h.saver.SaveRate(c.Request.Context(), class, r); err != nil {
			writeError(c, err)
			return
		}
	}
	if err := h.fares.SetRate(class, r); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"vehicle_class": class, "rate": r})
}

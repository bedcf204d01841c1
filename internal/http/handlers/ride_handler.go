// README: Ride handlers for booking, lifecycle transitions, billing and shuttle seats.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/fare"
	"campusride/internal/modules/ride"
	"campusride/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	RiderID      string `json:"rider_id"`
	RiderRole    string `json:"rider_role"`
	VehicleClass string `json:"vehicle_class"`
	Pickup       string `json:"pickup"`
	Dropoff      string `json:"dropoff"`
	Shared       bool   `json:"shared"`
	ShuttleRoute string `json:"shuttle_route"`
	BikeType     string `json:"bike_type"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if !bindJSON(c, &req) {
		return
	}
	if !isValidID(req.RiderID) || req.VehicleClass == "" || req.Pickup == "" || req.Dropoff == "" {
		writeMessage(c, http.StatusBadRequest, "missing fields")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RiderID:      types.ID(req.RiderID),
		RiderRole:    fare.RiderRole(req.RiderRole),
		VehicleClass: fare.VehicleClass(req.VehicleClass),
		Pickup:       types.Location(req.Pickup),
		Dropoff:      types.Location(req.Dropoff),
		Shared:       req.Shared,
		ShuttleRoute: ride.ShuttleRoute(req.ShuttleRoute),
		BikeType:     ride.BikeType(req.BikeType),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Events(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.rides.Events(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

func (h *RideHandler) Match(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Match(c.Request.Context(), ride.MatchCommand{RideID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type startReq struct {
	DriverID string `json:"driver_id"`
	OTP      string `json:"otp"`
}

func (h *RideHandler) Start(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req startReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Start(c.Request.Context(), ride.StartCommand{
		RideID:   id,
		DriverID: types.ID(req.DriverID),
		OTP:      req.OTP,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type completeReq struct {
	DriverID string `json:"driver_id"`
}

// Complete answers 402 with the completed ride when the charge is declined.
func (h *RideHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completeReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Complete(c.Request.Context(), ride.CompleteCommand{RideID: id, DriverID: types.ID(req.DriverID)})
	writeBilling(c, r, err)
}

func (h *RideHandler) Settle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.SettleBilling(c.Request.Context(), id)
	writeBilling(c, r, err)
}

func writeBilling(c *gin.Context, r *ride.Ride, err error) {
	if err != nil && r == nil {
		writeError(c, err)
		return
	}
	if err != nil {
		writeJSON(c, statusFor(err), gin.H{"error": err.Error(), "ride": r})
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelReq struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:    id,
		ActorType: req.ActorType,
		ActorID:   types.ID(req.ActorID),
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type rateReq struct {
	RiderID string  `json:"rider_id"`
	Rating  float64 `json:"rating"`
}

func (h *RideHandler) Rate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rateReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Rate(c.Request.Context(), ride.RateCommand{RideID: id, RiderID: types.ID(req.RiderID), Rating: req.Rating})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type splitReq struct {
	Participants []fare.Participant `json:"participants"`
}

func (h *RideHandler) Split(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req splitReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.SplitFare(c.Request.Context(), ride.SplitCommand{RideID: id, Participants: req.Participants})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type seatReq struct {
	RiderID   string `json:"rider_id"`
	RiderRole string `json:"rider_role"`
}

func (h *RideHandler) BookSeat(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req seatReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.BookSeat(c.Request.Context(), ride.BookSeatCommand{
		RideID:    id,
		RiderID:   types.ID(req.RiderID),
		RiderRole: fare.RiderRole(req.RiderRole),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type refundReq struct {
	ActorType string `json:"actor_type"`
	Reason    string `json:"reason"`
}

func (h *RideHandler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Refund(c.Request.Context(), ride.RefundCommand{RideID: id, ActorType: req.ActorType, Reason: req.Reason})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

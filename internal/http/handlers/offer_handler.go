// README: Bargaining handlers for counter-offers on pending rides.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/ride"
	"campusride/internal/types"
)

type OfferHandler struct {
	rides *ride.Service
}

func NewOfferHandler(svc *ride.Service) *OfferHandler {
	return &OfferHandler{rides: svc}
}

type offerReq struct {
	OfferedBy string  `json:"offered_by"`
	Amount    float64 `json:"amount"`
}

func (h *OfferHandler) Create(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req offerReq
	if !bindJSON(c, &req) {
		return
	}
	offer, err := h.rides.Bargain(c.Request.Context(), ride.BargainCommand{
		RideID:    id,
		OfferedBy: types.ID(req.OfferedBy),
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, offer)
}

func (h *OfferHandler) Latest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	offer, err := h.rides.LatestOffer(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, offer)
}

type acceptOfferReq struct {
	ActorID string `json:"actor_id"`
	OfferID int64  `json:"offer_id"`
}

func (h *OfferHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req acceptOfferReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.AcceptOffer(c.Request.Context(), ride.AcceptOfferCommand{
		RideID:  id,
		ActorID: types.ID(req.ActorID),
		OfferID: req.OfferID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusride/internal/http/handlers"
	"campusride/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(deps.Logger),
		middleware.Metrics(deps.Metrics),
		middleware.Recovery(deps.Logger),
	)

	rides := handlers.NewRideHandler(deps.Rides)
	r.POST("/api/rides", rides.Create)
	r.GET("/api/rides/:id", rides.Get)
	r.GET("/api/rides/:id/events", rides.Events)
	r.POST("/api/rides/:id/match", rides.Match)
	r.POST("/api/rides/:id/start", rides.Start)
	r.POST("/api/rides/:id/complete", rides.Complete)
	r.POST("/api/rides/:id/cancel", rides.Cancel)
	r.POST("/api/rides/:id/rate", rides.Rate)
	r.POST("/api/rides/:id/split", rides.Split)
	r.POST("/api/rides/:id/seats", rides.BookSeat)
	r.POST("/api/rides/:id/settle", rides.Settle)
	r.POST("/api/rides/:id/refund", rides.Refund)

	offers := handlers.NewOfferHandler(deps.Rides)
	r.POST("/api/rides/:id/offers", offers.Create)
	r.GET("/api/rides/:id/offers/latest", offers.Latest)
	r.POST("/api/rides/:id/offers/accept", offers.Accept)

	drivers := handlers.NewDriverHandler(deps.Drivers, deps.Nearby)
	r.POST("/api/drivers", drivers.Register)
	r.GET("/api/drivers/nearby", drivers.Nearby)
	r.GET("/api/drivers/:id", drivers.Get)
	r.PUT("/api/drivers/:id/location", drivers.UpdateLocation)
	r.POST("/api/drivers/:id/on-duty", drivers.OnDuty)
	r.POST("/api/drivers/:id/off-duty", drivers.OffDuty)

	fares := handlers.NewFareHandler(deps.Fares, deps.Oracle, deps.RateSaver)
	r.POST("/api/fares/quote", fares.Quote)
	r.GET("/api/fares/rates", fares.Rates)
	r.PUT("/api/fares/rates/:class", fares.SetRate)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	return r
}

// README: API gateway; holds service dependencies and builds the HTTP handler.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"campusride/internal/geo"
	"campusride/internal/http/handlers"
	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/modules/ride"
	"campusride/internal/observability"
)

type ServerDeps struct {
	Rides   *ride.Service
	Drivers *driver.Pool
	Fares   *fare.Engine
	Oracle  geo.Oracle
	// Optional collaborators. Nil disables nearby search and rate persistence.
	Nearby    handlers.NearbyFinder
	RateSaver handlers.RateSaver

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.deps)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/api/handler"
	apimw "github.com/ricirt/missedmail/internal/api/middleware"
	"github.com/ricirt/missedmail/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.MissedMessageService,
	checks map[string]handler.Check,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	mh := handler.NewMissedMessageHandler(svc, logger)
	dh := handler.NewDigestHandler(svc, logger)
	rh := handler.NewReplyAddressHandler(svc, logger)
	hh := handler.NewHealthHandler(checks)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/missed-messages", mh.Enqueue)
		r.Post("/digests", dh.Send)
		r.Post("/reply-addresses/{token}/redeem", rh.Redeem)
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/returns-engine/api/controllers"
	returncontrollers "github.com/angelmondragon/returns-engine/api/controllers/returns"
	webhookcontrollers "github.com/angelmondragon/returns-engine/api/controllers/webhooks"
	"github.com/angelmondragon/returns-engine/api/middleware"
	internalreturns "github.com/angelmondragon/returns-engine/internal/returns"
	"github.com/angelmondragon/returns-engine/internal/shipping"
	"github.com/angelmondragon/returns-engine/pkg/config"
	"github.com/angelmondragon/returns-engine/pkg/db"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	"github.com/angelmondragon/returns-engine/pkg/idempotency"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	returnsService *internalreturns.Service,
	orchestrator *shipping.Orchestrator,
	webhookGuard *idempotency.Manager,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbClient, redisClient, logg))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/shipping", webhookcontrollers.ShippingWebhook(returnsService, webhookGuard, cfg.Shipping.WebhookSecret, logg))
	})

	r.Route("/api/v1/returns", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Route("/{returnId}", func(r chi.Router) {
			r.Get("/", returncontrollers.Detail(returnsService, logg))
			r.Post("/decision", returncontrollers.Decide(returnsService, logg))
			r.Post("/pickup", returncontrollers.BookPickup(orchestrator, logg))
			r.Post("/pickup/reschedule", returncontrollers.ReschedulePickup(orchestrator, logg))
			r.Post("/receipt", returncontrollers.ConfirmReceipt(returnsService, logg))
			r.Post("/inspection", returncontrollers.RecordInspection(returnsService, logg))

			r.With(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleFinance)).
				Post("/refund", returncontrollers.IssueRefund(returnsService, logg))
			r.With(middleware.RequireRoles(logg, enums.ActorRoleFinance, enums.ActorRoleSystem)).
				Post("/refund/complete", returncontrollers.CompleteRefund(returnsService, logg))
		})
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/controllers"
	webhookcontrollers "github.com/deepanshucode1-cmd/trisikha-backend/api/controllers/webhooks"
	"github.com/deepanshucode1-cmd/trisikha-backend/api/middleware"
	cancelsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/cancellation"
	checkoutsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/checkout"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	returnsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/returns"
	shippingsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/shipping"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/webhooks"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	ordersRepo orders.Repository,
	cancellationService cancelsvc.Service,
	returnsService returnsvc.Service,
	shippingService shippingsvc.Service,
	razorpayWebhook *webhooks.RazorpayProcessor,
	shiprocketWebhook *webhooks.ShiprocketProcessor,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.Window,
		cfg.RateLimit.CheckoutLimit,
		0,
	)
	otpPolicy := middleware.NewRateLimitPolicy(
		"otp",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.OTPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.Razorpay(razorpayWebhook, logg))
		r.Post("/shiprocket", webhookcontrollers.Shiprocket(shiprocketWebhook, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		r.With(middleware.RateLimit(checkoutPolicy, redisClient, logg)).
			Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/checkout/verify", controllers.VerifyPayment(checkoutService, logg))

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/status", controllers.OrderStatus(ordersService, logg))
			r.With(middleware.RateLimit(otpPolicy, redisClient, logg)).
				Post("/cancel/otp", controllers.RequestCancellationOTP(cancellationService, logg))
			r.Post("/cancel", controllers.ConfirmCancellation(cancellationService, logg))
			r.Post("/return", controllers.RequestReturn(returnsService, logg))
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))
		r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(ordersRepo, logg))
			r.Post("/{orderID}/ship", controllers.AdminShipOrder(shippingService, logg))
			r.Post("/{orderID}/schedule-pickup", controllers.AdminSchedulePickup(shippingService, logg))
			r.Post("/{orderID}/label", controllers.AdminGenerateLabel(shippingService, logg))
			r.Get("/{orderID}/tracking", controllers.AdminTrackShipment(shippingService, logg))
			r.Post("/{orderID}/cancellation/retry", controllers.AdminRetryCancellation(cancellationService, logg))
			r.Post("/{orderID}/return/refund", controllers.AdminInspectReturn(returnsService, logg))
		})
		r.Get("/serviceability", controllers.AdminServiceability(shippingService, logg))
		r.Post("/returns/manifest", controllers.AdminManifestReturns(returnsService, logg))
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gigbridge/gigbridge-backend/api/controllers"
	"github.com/gigbridge/gigbridge-backend/api/middleware"
	"github.com/gigbridge/gigbridge-backend/pkg/config"
	"github.com/gigbridge/gigbridge-backend/pkg/db"
	"github.com/gigbridge/gigbridge-backend/pkg/logger"
	"github.com/gigbridge/gigbridge-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	RedisClient *redis.Client
	Wallets     controllers.WalletService
	Payments    controllers.PaymentService
	Contracts   controllers.ContractService
	Invoices    controllers.InvoiceService
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.RedisClient))
	})

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.RedisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/wallets/me", func(r chi.Router) {
			r.Get("/", controllers.WalletMe(params.Wallets, logg))
			r.Get("/entries", controllers.WalletEntries(params.Wallets, logg))
			r.Post("/deposit", controllers.WalletDeposit(params.Wallets, logg))
			r.Post("/withdraw", controllers.WalletWithdraw(params.Wallets, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", controllers.PaymentList(params.Payments, logg))
			r.Post("/", controllers.PaymentCreate(params.Payments, logg))
			r.Get("/{paymentId}", controllers.PaymentDetail(params.Payments, logg))
			r.Post("/{paymentId}/process", controllers.PaymentProcess(params.Payments, logg))
			r.Post("/{paymentId}/settle", controllers.PaymentSettle(params.Payments, logg))
			r.Post("/{paymentId}/cancel", controllers.PaymentCancel(params.Payments, logg))
			r.Post("/{paymentId}/refund", controllers.PaymentRefund(params.Payments, logg))
			r.Post("/{paymentId}/dispute", controllers.PaymentDispute(params.Payments, logg))
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", controllers.ContractList(params.Contracts, logg))
			r.Post("/", controllers.ContractCreate(params.Contracts, logg))
			r.Get("/{contractId}", controllers.ContractDetail(params.Contracts, logg))
			r.Post("/{contractId}/sign", controllers.ContractSign(params.Contracts, logg))
			r.Post("/{contractId}/activate", controllers.ContractActivate(params.Contracts, logg))
			r.Post("/{contractId}/complete", controllers.ContractComplete(params.Contracts, logg))
			r.Post("/{contractId}/terminate", controllers.ContractTerminate(params.Contracts, logg))

			r.Route("/{contractId}/milestones/{milestoneId}", func(r chi.Router) {
				r.Post("/start", controllers.MilestoneStart(params.Contracts, logg))
				r.Post("/submit", controllers.MilestoneSubmit(params.Contracts, logg))
				r.Post("/approve", controllers.MilestoneApprove(params.Contracts, logg))
				r.Post("/reject", controllers.MilestoneReject(params.Contracts, logg))
			})
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", controllers.InvoiceList(params.Invoices, logg))
			r.Post("/", controllers.InvoiceCreate(params.Invoices, logg))
			r.Get("/{invoiceId}", controllers.InvoiceDetail(params.Invoices, logg))
			r.Post("/{invoiceId}/send", controllers.InvoiceSend(params.Invoices, logg))
			r.Post("/{invoiceId}/view", controllers.InvoiceView(params.Invoices, logg))
			r.Post("/{invoiceId}/pay", controllers.InvoicePay(params.Invoices, logg))
			r.Post("/{invoiceId}/cancel", controllers.InvoiceCancel(params.Invoices, logg))
		})
	})

	return r
}

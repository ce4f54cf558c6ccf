package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ffp-admin/metrics"
	"ffp-admin/middleware"
	"ffp-admin/services"
	"ffp-admin/utils"
)

// Deps are everything the HTTP layer is built from.
type Deps struct {
	DB             *gorm.DB
	Log            *zap.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Sessions       *services.SessionManager
	Auth           *services.AuthService
	Programs       *services.ProgramService
	TransferRatios *services.TransferRatioService
	CreditCards    *services.CreditCardService
	Store          ObjectStore // nil disables uploads and logo URLs
	AllowedOrigins []string
	Development    bool
}

// NewApp builds the Fiber application with every route mounted.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ffp-admin",
		BodyLimit:             utils.MaxUploadSize + 1<<20,
		ErrorHandler:          ErrorHandler(d.Log, d.Development),
		DisableStartupMessage: true,
	})

	origins := strings.Join(d.AllowedOrigins, ",")
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: origins != "" && origins != "*", // cors rejects credentials with a wildcard
		MaxAge:           86400,
	}))
	app.Use(middleware.RequestLogger(d.Log.Named("http"), d.Metrics))
	app.Use(middleware.Session(d.Sessions, d.Log.Named("session")))

	if d.Gatherer != nil {
		SetupOpsRoutes(app, d.DB, d.Gatherer)
	}
	SetupAuthRoutes(app, NewAuthHandler(d.Auth, !d.Development))
	SetupProgramRoutes(app, NewProgramHandler(d.Programs, d.Store, d.Log))
	SetupTransferRatioRoutes(app, NewTransferRatioHandler(d.TransferRatios))
	SetupCreditCardRoutes(app, NewCreditCardHandler(d.CreditCards))
	SetupUploadRoutes(app, NewUploadHandler(d.Store, d.Programs, d.Log))
	return app
}

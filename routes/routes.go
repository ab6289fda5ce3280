// Package routes assembles the gin engine: the global middleware chain
// and the route table.
package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tobylas-w/ThaiTable-sub000/handlers"
	"github.com/tobylas-w/ThaiTable-sub000/metrics"
	"github.com/tobylas-w/ThaiTable-sub000/middleware"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/ratelimit"
)

// Options configures the engine.
type Options struct {
	Logger      *slog.Logger
	CORSOrigins []string
	// ExposeStack adds stack traces to 5xx error bodies. Never in production.
	ExposeStack bool
	// AuthLimiter guards the credential endpoints. Nil disables limiting.
	AuthLimiter ratelimit.Limiter
	// UploadDir is served under /uploads when images are stored locally.
	UploadDir string
}

// NewEngine builds the engine with every route registered.
func NewEngine(h *handlers.Handler, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(
		middleware.WithLogger(opts.Logger),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.Recovery(opts.ExposeStack),
		middleware.ErrorHandler(opts.ExposeStack),
		middleware.CORS(opts.CORSOrigins),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ThaiTable API",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}

	SetupRoutes(r, h, opts.AuthLimiter)
	return r
}

func SetupRoutes(r *gin.Engine, h *handlers.Handler, limiter ratelimit.Limiter) {
	limited := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		if limiter == nil {
			return []gin.HandlerFunc{hf}
		}
		return []gin.HandlerFunc{middleware.RateLimit(limiter), hf}
	}
	authenticate := middleware.Authenticate(h.Auth)
	managers := middleware.RequireRoles(models.ManagerRoles...)

	api := r.Group("/api")

	// ── Public routes ──────────────────────────────────────────────
	{
		api.POST("/auth/register", limited(h.Register)...)
		api.POST("/auth/login", limited(h.Login)...)
		api.POST("/auth/refresh", h.Refresh)
		api.POST("/auth/forgot-password", limited(h.ForgotPassword)...)
		api.POST("/auth/reset-password", limited(h.ResetPassword)...)
		api.POST("/auth/verify-email", h.VerifyEmail)
		api.POST("/auth/resend-verification", limited(h.ResendVerification)...)

		// Onboarding: restaurant plus owner account
		api.POST("/restaurants", limited(h.CreateRestaurant)...)

		api.GET("/public/restaurants/:restaurantId/menu", middleware.OptionalAuth(h.Auth), h.PublicMenu)

		// State machine info (great for docs/Postman)
		api.GET("/order/state-machine", h.GetStateMachineInfo)
	}

	// ── Authenticated routes ───────────────────────────────────────
	session := api.Group("/auth")
	session.Use(authenticate)
	{
		session.POST("/logout", h.Logout)
		session.GET("/me", h.Me)
	}

	// ── Restaurant routes (tenant scoped) ──────────────────────────
	restaurant := api.Group("/restaurants/:restaurantId")
	restaurant.Use(authenticate, middleware.RequireRestaurantParam("restaurantId"))
	{
		restaurant.GET("", h.GetRestaurant)
		restaurant.PUT("", middleware.RequireRoles(models.RoleOwner, models.RoleAdmin), h.UpdateRestaurant)
		restaurant.GET("/dashboard", h.Dashboard)
		restaurant.GET("/orders", h.GetRestaurantOrders)

		// Menu categories
		restaurant.GET("/categories", h.ListCategories)
		restaurant.POST("/categories", managers, h.CreateCategory)
		restaurant.PUT("/categories/:id", managers, h.UpdateCategory)
		restaurant.DELETE("/categories/:id", managers, h.DeleteCategory)

		// Menu management
		restaurant.GET("/menu", h.ListMenu)
		restaurant.POST("/menu", managers, h.AddMenuItem)
		restaurant.PUT("/menu/:id", managers, h.UpdateMenuItem)
		restaurant.DELETE("/menu/:id", managers, h.DeleteMenuItem)
		restaurant.POST("/menu/:id/image", managers, h.UploadMenuImage)

		// Tables
		restaurant.GET("/tables", h.ListTables)
		restaurant.POST("/tables", managers, h.CreateTable)
		restaurant.PUT("/tables/:id", managers, h.UpdateTable)
		restaurant.DELETE("/tables/:id", managers, h.DeleteTable)
		restaurant.PATCH("/tables/:id/status", h.UpdateTableStatus)
	}

	// ── Order routes ───────────────────────────────────────────────
	order := api.Group("/order")
	order.Use(authenticate)
	{
		order.POST("", h.PlaceOrder)
		order.GET("/:id", h.GetOrderDetail)
		order.PATCH("/:id/status", h.UpdateOrderStatus)
		order.PATCH("/:id/payment", h.UpdatePayment)
		order.GET("/:id/promptpay", h.PromptPayQR)
	}
}

package routes

import (
	"html/template"

	"github.com/01moynul/storefront-golang/internal/handlers"
	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/01moynul/storefront-golang/internal/web"
	"github.com/gin-gonic/gin"
)

func SetupRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(h.Log))

	// Every route sees the caller's session (or none).
	router.Use(middleware.SessionMiddleware(h.DB, h.Tokens, h.Cookie, h.Log))

	router.SetHTMLTemplate(template.Must(web.Templates()))
	router.Static("/uploads", h.UploadDir)

	// --- Public Routes ---
	router.GET("/", h.Home)
	router.GET("/login/", h.ShowLogin)
	router.POST("/login/", h.Login)
	router.GET("/register/", h.ShowRegister)
	router.POST("/register/", h.Register)

	// --- Gateway Callback (Public, verified by the gateway) ---
	router.GET("/payments/pesapal/ipn/", h.PesapalIPN)
	router.POST("/payments/pesapal/ipn/", h.PesapalIPN)

	// --- Protected Routes (Login Required) ---
	auth := router.Group("/")
	auth.Use(middleware.RequireLogin())
	{
		auth.POST("/logout/", h.Logout)
		auth.GET("/payment-success/", h.PaymentSuccess)
	}

	// --- Admin Routes ---
	admin := router.Group("/")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/admin-dashboard/", h.AdminDashboard)
		admin.POST("/admin-dashboard/", h.UpdateOrder)
		admin.GET("/add-product/", h.ShowAddProduct)
		admin.POST("/add-product/", h.AddProduct)
	}

	// --- User Routes ---
	user := router.Group("/")
	user.Use(middleware.RequireRole(models.RoleUser))
	{
		user.GET("/dashboard/", h.UserDashboard)
		user.GET("/place-order/:productId/", h.PlaceOrder)
		user.GET("/pay/:orderId/", h.ShowPaymentPage)
		user.GET("/process-payment/:orderId/", h.ProcessPayment)
		user.POST("/process-payment/:orderId/", h.ProcessPayment)
	}

	return router
}

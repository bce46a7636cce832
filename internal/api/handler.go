package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// CallbackQueue hands gateway notifications to the asynchronous worker
type CallbackQueue interface {
	Enqueue(ctx context.Context, cb *models.GatewayCallback) error
}

// Options configures optional handler behaviour
type Options struct {
	JWTSecret         string
	AllowTestCallback bool
	CallbackQueue     CallbackQueue
	Dependencies      map[string]Pinger
	Now               func() time.Time
}

// Handler contains HTTP handlers
type Handler struct {
	booking     *service.BookingCoordinator
	payments    *service.PaymentReconciler
	promotions  *service.PromotionValidator
	reclamation *service.SeatReclamation
	opts        Options
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	booking *service.BookingCoordinator,
	payments *service.PaymentReconciler,
	promotions *service.PromotionValidator,
	reclamation *service.SeatReclamation,
	opts Options,
) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		booking:     booking,
		payments:    payments,
		promotions:  promotions,
		reclamation: reclamation,
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// called by the gateway, authenticated by signature
		v1.POST("/payments/callback", h.paymentCallback)
		v1.GET("/promotions/active", h.activePromotions)

		authed := v1.Group("", AuthMiddleware(h.opts.JWTSecret))
		authed.POST("/bookings", h.book)
		authed.GET("/tickets/my", h.myTickets)
		authed.GET("/tickets/:id", h.getTicket)
		authed.PUT("/tickets/:id/cancel", h.cancelTicket)
		authed.POST("/payments", h.createPayment)
		authed.GET("/payments/my", h.myPayments)
		authed.GET("/payments/status/:orderId", h.paymentStatus)
		if h.opts.AllowTestCallback {
			authed.POST("/payments/test-callback", h.testCallback)
		}

		admin := authed.Group("", RequireRole(models.RoleAdmin))
		admin.PUT("/tickets/:id/check-in", h.checkIn)
		admin.POST("/seat-reclamation/run", h.runReclamation)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.opts.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// book handles seat booking
func (h *Handler) book(c *gin.Context) {
	var req service.BookRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.booking.Book(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// myTickets lists the caller's tickets
func (h *Handler) myTickets(c *gin.Context) {
	tickets, err := h.booking.MyTickets(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// getTicket handles get ticket by ID
func (h *Handler) getTicket(c *gin.Context) {
	ticketID, ok := paramID(c)
	if !ok {
		return
	}

	ticket, err := h.booking.GetTicket(c.Request.Context(), identityFrom(c), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// cancelTicket handles ticket cancellation
func (h *Handler) cancelTicket(c *gin.Context) {
	ticketID, ok := paramID(c)
	if !ok {
		return
	}

	ticket, err := h.booking.CancelTicket(c.Request.Context(), identityFrom(c), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// checkIn marks a paid ticket as used
func (h *Handler) checkIn(c *gin.Context) {
	ticketID, ok := paramID(c)
	if !ok {
		return
	}

	ticket, err := h.booking.CheckIn(c.Request.Context(), identityFrom(c), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// createPayment opens a gateway payment for tickets
func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreateIntentRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.payments.CreateIntent(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent)
}

// paymentCallback receives the gateway notification. With a callback queue
// configured the notification is settled by the callback worker.
func (h *Handler) paymentCallback(c *gin.Context) {
	var cb models.GatewayCallback
	if !bindJSON(c, &cb) {
		return
	}

	if h.opts.CallbackQueue != nil {
		err := h.opts.CallbackQueue.Enqueue(c.Request.Context(), &cb)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"status": "queued", "order_id": cb.OrderID})
			return
		}
		h.logger.Error("Failed to queue callback, applying inline",
			zap.String("order_id", cb.OrderID),
			zap.Error(err))
	}

	payment, err := h.payments.ApplyCallback(c.Request.Context(), &cb)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": payment.Status, "order_id": payment.OrderID})
}

// testCallback settles the caller's own payment without a gateway signature
func (h *Handler) testCallback(c *gin.Context) {
	var cb models.GatewayCallback
	if !bindJSON(c, &cb) {
		return
	}

	if _, err := h.ownedPayment(c, cb.OrderID); err != nil {
		respondError(c, err)
		return
	}

	payment, err := h.payments.ApplyCallbackUnverified(c.Request.Context(), &cb)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": payment.Status, "order_id": payment.OrderID})
}

// paymentStatus returns the payment snapshot for an order
func (h *Handler) paymentStatus(c *gin.Context) {
	payment, err := h.ownedPayment(c, c.Param("orderId"))
	if apperr.KindOf(err) == apperr.KindNotFound {
		respondErrorStatus(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// myPayments lists the caller's payments
func (h *Handler) myPayments(c *gin.Context) {
	payments, err := h.payments.MyPayments(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// activePromotions lists promotions valid today
func (h *Handler) activePromotions(c *gin.Context) {
	promos, err := h.promotions.ActivePromotions(c.Request.Context(), h.opts.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"promotions": promos})
}

// runReclamation triggers a reclamation sweep
func (h *Handler) runReclamation(c *gin.Context) {
	reset, err := h.reclamation.RunNow(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seats_reset": reset})
}

// ownedPayment loads a payment visible to the caller. Other customers'
// payments are reported as not found.
func (h *Handler) ownedPayment(c *gin.Context, orderID string) (*models.Payment, error) {
	payment, err := h.payments.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		return nil, err
	}

	identity := identityFrom(c)
	if !identity.IsAdmin() && payment.CustomerID != identity.CustomerID {
		return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", orderID)
	}
	return payment, nil
}

// respondError renders err as {code, message}
func respondError(c *gin.Context, err error) {
	respondErrorStatus(c, apperr.HTTPStatus(err), err)
}

func respondErrorStatus(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"code":    apperr.CodeOf(err),
		"message": apperr.PublicMessage(err),
	})
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.Validation("invalid ticket id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

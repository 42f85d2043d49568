package infrastructure

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bookvault/internal/orders/application"
	"bookvault/internal/orders/domain"
	"bookvault/pkg/errors"
	"bookvault/pkg/middleware"
)

// HTTPHandler handles HTTP requests for orders
type HTTPHandler struct {
	useCase *application.OrderUseCase
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(useCase *application.OrderUseCase) *HTTPHandler {
	return &HTTPHandler{useCase: useCase}
}

// RegisterRoutes registers the order routes
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrdersByStatus)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/number/:number", h.GetOrderByNumber)
		orders.PATCH("/:id/status", h.UpdateStatus)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.PUT("/:id/tracking", h.UpdateTracking)
	}
	r.GET("/users/:userId/orders", h.ListUserOrders)
}

// CreateOrder handles POST /orders
// @Summary      Place an order
// @Description  Prices the cart, reserves stock and records the order in one transaction
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        X-User-ID        header  string              true   "Caller user ID"
// @Param        Idempotency-Key  header  string              false  "Client deduplication key"
// @Param        request          body    CreateOrderRequest  true   "Order"
// @Success      201  {object}  OrderResponse
// @Failure      400  {object}  errors.AppError
// @Failure      404  {object}  errors.AppError
// @Failure      409  {object}  errors.AppError
// @Router       /orders [post]
func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	userID, err := parseID(c.GetHeader(middleware.UserIDHeader), "user_id")
	if err != nil {
		c.Error(errors.NewValidation(middleware.UserIDHeader+" header must be a valid user id", nil))
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	input, err := req.toInput(userID, c.GetHeader(middleware.IdempotencyKeyHeader))
	if err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.CreateOrder(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusCreated, newOrderResponse(output))
}

// GetOrder handles GET /orders/:id
// @Summary  Get an order by ID
// @Tags     orders
// @Produce  json
// @Param    id   path      string  true  "Order ID"
// @Success  200  {object}  OrderResponse
// @Failure  404  {object}  errors.AppError
// @Router   /orders/{id} [get]
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"), "order_id")
	if err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderResponse(output))
}

// GetOrderByNumber handles GET /orders/number/:number
// @Summary  Get an order by order number
// @Tags     orders
// @Produce  json
// @Param    number  path      string  true  "Order number"
// @Success  200     {object}  OrderResponse
// @Failure  404     {object}  errors.AppError
// @Router   /orders/number/{number} [get]
func (h *HTTPHandler) GetOrderByNumber(c *gin.Context) {
	output, err := h.useCase.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderResponse(output))
}

// ListOrdersByStatus handles GET /orders?status=
// @Summary  List orders in a status
// @Tags     orders
// @Produce  json
// @Param    status  query     string  true   "Order status"
// @Param    page    query     int     false  "Zero-based page"
// @Param    size    query     int     false  "Page size (max 100)"
// @Success  200     {object}  OrderListResponse
// @Failure  400     {object}  errors.AppError
// @Router   /orders [get]
func (h *HTTPHandler) ListOrdersByStatus(c *gin.Context) {
	raw := c.Query("status")
	if strings.TrimSpace(raw) == "" {
		c.Error(errors.NewValidation("status query parameter is required", nil))
		return
	}
	status, err := domain.ParseOrderStatus(raw)
	if err != nil {
		c.Error(err)
		return
	}
	page, err := pageQuery(c)
	if err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.ListOrdersByStatus(c.Request.Context(), status, page)
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderListResponse(output))
}

// ListUserOrders handles GET /users/:userId/orders
// @Summary  List a user's orders, newest first
// @Tags     orders
// @Produce  json
// @Param    userId  path      string  true   "User ID"
// @Param    page    query     int     false  "Zero-based page"
// @Param    size    query     int     false  "Page size (max 100)"
// @Success  200     {object}  OrderListResponse
// @Router   /users/{userId}/orders [get]
func (h *HTTPHandler) ListUserOrders(c *gin.Context) {
	userID, err := parseID(c.Param("userId"), "user_id")
	if err != nil {
		c.Error(err)
		return
	}
	page, err := pageQuery(c)
	if err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.ListOrdersByUser(c.Request.Context(), userID, page)
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderListResponse(output))
}

// UpdateStatus handles PATCH /orders/:id/status
// @Summary  Move an order along its lifecycle
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    id       path      string               true  "Order ID"
// @Param    request  body      UpdateStatusRequest  true  "Target status"
// @Success  200      {object}  OrderResponse
// @Failure  404      {object}  errors.AppError
// @Failure  409      {object}  errors.AppError
// @Router   /orders/{id}/status [patch]
func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"), "order_id")
	if err != nil {
		c.Error(err)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		c.Error(err)
		return
	}

	output, err := h.useCase.TransitionStatus(c.Request.Context(), application.TransitionStatusInput{
		ID:     id,
		Status: status,
		Reason: req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderResponse(output))
}

// CancelOrder handles POST /orders/:id/cancel
// @Summary  Cancel a pending or confirmed order
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    id       path      string              true   "Order ID"
// @Param    request  body      CancelOrderRequest  false  "Reason"
// @Success  200      {object}  OrderResponse
// @Failure  404      {object}  errors.AppError
// @Failure  409      {object}  errors.AppError
// @Router   /orders/{id}/cancel [post]
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"), "order_id")
	if err != nil {
		c.Error(err)
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.CancelOrder(c.Request.Context(), application.CancelOrderInput{
		ID:     id,
		Reason: req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderResponse(output))
}

// UpdateTracking handles PUT /orders/:id/tracking
// @Summary  Set carrier tracking details
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    id       path      string                 true  "Order ID"
// @Param    request  body      UpdateTrackingRequest  true  "Tracking"
// @Success  200      {object}  OrderResponse
// @Failure  404      {object}  errors.AppError
// @Router   /orders/{id}/tracking [put]
func (h *HTTPHandler) UpdateTracking(c *gin.Context) {
	id, err := parseID(c.Param("id"), "order_id")
	if err != nil {
		c.Error(err)
		return
	}

	var req UpdateTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidation("invalid request body", err.Error()))
		return
	}

	output, err := h.useCase.UpdateTracking(c.Request.Context(), application.UpdateTrackingInput{
		ID:                    id,
		TrackingNumber:        req.TrackingNumber,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
	})
	if err != nil {
		c.Error(err)
		return
	}

	respond(c, http.StatusOK, newOrderResponse(output))
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"data":     data,
		"trace_id": c.GetString(middleware.TraceIDKey),
	})
}

func pageQuery(c *gin.Context) (application.ListOrdersInput, error) {
	var in application.ListOrdersInput
	for _, q := range []struct {
		name string
		dst  *int
	}{{"page", &in.Page}, {"size", &in.Size}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return in, errors.NewValidation("invalid "+q.name+" query parameter", map[string]interface{}{q.name: raw})
		}
		*q.dst = v
	}
	return in, nil
}

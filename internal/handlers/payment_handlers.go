package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/01moynul/storefront-golang/internal/database"
	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/01moynul/storefront-golang/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//
// --- Payment Handlers ---
//

// PaymentInput holds the payment method selection.
type PaymentInput struct {
	Method models.PaymentMethod `form:"method" binding:"required"`
}

// loadOwnOrder resolves :orderId to one of the caller's orders. It writes the
// redirect itself and returns nil when the order cannot be used.
func (h *Handlers) loadOwnOrder(c *gin.Context) *models.Order {
	s := middleware.CurrentSession(c)
	orderID, ok := idParam(c, "orderId")
	if !ok {
		flash.Errorf(c, "Order not found.")
		h.redirect(c, "/dashboard/")
		return nil
	}
	order, err := h.getOrder(c.Request.Context(), h.DB, orderID, s.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			flash.Errorf(c, "Order not found.")
			h.redirect(c, "/dashboard/")
			return nil
		}
		h.fail(c, "/dashboard/", "failed to load order", err)
		return nil
	}
	return order
}

// ShowPaymentPage is the handler for GET /pay/:orderId/
func (h *Handlers) ShowPaymentPage(c *gin.Context) {
	order := h.loadOwnOrder(c)
	if order == nil {
		return
	}
	if order.HasPayment() {
		flash.Infof(c, "Payment already exists for this order.")
		h.redirect(c, "/dashboard/")
		return
	}
	h.render(c, "payment_page.html", gin.H{"Title": "Payment", "Order": order})
}

// ProcessPayment is the handler for POST /process-payment/:orderId/
func (h *Handlers) ProcessPayment(c *gin.Context) {
	// 1. --- Load the Caller's Order ---
	// loadOwnOrder filters by the session's user id, so another user's
	// order id behaves exactly like a missing one.
	order := h.loadOwnOrder(c)
	if order == nil {
		return
	}

	// 2. --- Short-Circuit Resubmissions ---
	// An order has at most one payment. A second submit (back button, double
	// click) is reported as a notice, not an error.
	if order.HasPayment() {
		flash.Infof(c, "Payment already processed.")
		h.redirect(c, "/dashboard/")
		return
	}

	payPage := fmt.Sprintf("/pay/%d/", order.ID)
	if c.Request.Method != http.MethodPost {
		h.redirect(c, payPage)
		return
	}

	// 3. --- Bind & Validate the Method ---
	// 'required' catches an empty radio group; Valid() rejects anything
	// outside mpesa/card/cash.
	var input PaymentInput
	if err := c.ShouldBind(&input); err != nil {
		flash.Errorf(c, "Please select a payment method.")
		h.redirect(c, payPage)
		return
	}
	if !input.Method.Valid() {
		flash.Errorf(c, "Unsupported payment method.")
		h.redirect(c, payPage)
		return
	}

	// 4. --- Dispatch ---
	// Cash and card are settled here and now. M-Pesa leaves a pending payment
	// and hands the caller to the gateway.
	if input.Method.Offline() {
		h.payOffline(c, order, input.Method)
		return
	}
	h.payWithGateway(c, order)
}

// payOffline records an approved cash/card payment and ships the order.
func (h *Handlers) payOffline(c *gin.Context, order *models.Order, method models.PaymentMethod) {
	ctx := c.Request.Context()
	amount := order.Total()

	// 1. --- Begin Transaction ---
	// The payment row and the shipped status must land together: a payment
	// without a shipped order (or the reverse) would never be corrected.
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.fail(c, "/dashboard/", "failed to start transaction", err)
		return
	}
	defer tx.Rollback() // Safety net

	// 2. --- Record the Payment ---
	// The amount is the order total frozen at this moment. UNIQUE(order_id)
	// turns a concurrent double submit into a 1062, handled below.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, amount, method, status, paid_at, transaction_id)
		VALUES (?, ?, ?, ?, ?, NULL)`,
		order.ID, amount, method, models.PaymentApproved, time.Now().UTC(),
	); err != nil {
		h.paymentInsertFailed(c, order, err)
		return
	}
	// 3. --- Ship the Order ---
	if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", models.OrderShipped, order.ID); err != nil {
		h.fail(c, "/dashboard/", "failed to ship order", err)
		return
	}
	if err := tx.Commit(); err != nil {
		h.fail(c, "/dashboard/", "failed to commit payment", err)
		return
	}

	h.Log.Info("payment approved", zap.Int64("order_id", order.ID), zap.String("method", string(method)), zap.String("amount", amount.StringFixed(2)))
	h.publish(ctx, events.New(events.PaymentRecorded, order.ID, order.UserID, map[string]interface{}{
		"method": method,
		"status": models.PaymentApproved,
		"amount": amount.StringFixed(2),
	}))
	h.publish(ctx, events.New(events.OrderStatusChanged, order.ID, order.UserID, map[string]interface{}{
		"status": models.OrderShipped,
	}))

	flash.Successf(c, "Payment successful! Your order will be processed shortly.")
	h.redirect(c, "/payment-success/")
}

// payWithGateway records a pending mpesa payment and sends the caller to the gateway.
// Nothing here proves the caller ever pays: only a verified gateway callback
// (see PesapalIPN) may move the payment out of pending.
func (h *Handlers) payWithGateway(c *gin.Context, order *models.Order) {
	ctx := c.Request.Context()
	s := middleware.CurrentSession(c)
	amount := order.Total()
	reference := payments.NewReference()

	// 1. --- Build the Gateway Redirect ---
	// The reference is fresh per checkout and is the only key a later
	// gateway callback can use to find this payment.
	redirectURL, err := h.Gateway.RedirectURL(payments.Checkout{
		OrderID:     order.ID,
		Amount:      amount,
		Reference:   reference,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		Email:       s.Email,
		CallbackURL: h.absoluteURL(c, "/payment-success/"),
	})
	if err != nil {
		h.fail(c, fmt.Sprintf("/pay/%d/", order.ID), "failed to build gateway redirect", err)
		return
	}

	// 2. --- Record the Pending Payment ---
	// Written before the redirect so that a returning caller sees
	// "already processed" instead of paying twice.
	if _, err := h.DB.ExecContext(ctx, `
		INSERT INTO payments (order_id, amount, method, status, paid_at, transaction_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, amount, models.MethodMpesa, models.PaymentPending, time.Now().UTC(), reference,
	); err != nil {
		h.paymentInsertFailed(c, order, err)
		return
	}

	h.Log.Info("redirecting to payment gateway",
		zap.Int64("order_id", order.ID),
		zap.String("reference", reference),
		zap.String("amount", amount.StringFixed(2)),
	)
	h.publish(ctx, events.New(events.PaymentRecorded, order.ID, order.UserID, map[string]interface{}{
		"method":    models.MethodMpesa,
		"status":    models.PaymentPending,
		"amount":    amount.StringFixed(2),
		"reference": reference,
	}))

	c.Redirect(http.StatusFound, redirectURL)
}

// paymentInsertFailed turns a lost double-submit race into the same notice as a resubmission.
func (h *Handlers) paymentInsertFailed(c *gin.Context, order *models.Order, err error) {
	if database.IsDuplicateEntry(err) {
		h.Log.Info("duplicate payment submission", zap.Int64("order_id", order.ID))
		flash.Infof(c, "Payment already processed.")
		h.redirect(c, "/dashboard/")
		return
	}
	h.fail(c, "/dashboard/", "failed to record payment", err)
}

// PaymentSuccess is the handler for GET /payment-success/
// It is a confirmation page, not proof of payment. When the caller's latest
// payment is a pending mpesa one, the page says it awaits the gateway.
func (h *Handlers) PaymentSuccess(c *gin.Context) {
	s := middleware.CurrentSession(c)

	var (
		orderID int64
		method  models.PaymentMethod
		status  models.PaymentStatus
	)
	err := h.DB.QueryRowContext(c.Request.Context(), `
		SELECT pay.order_id, pay.method, pay.status
		FROM payments pay
		JOIN orders o ON o.id = pay.order_id
		WHERE o.user_id = ?
		ORDER BY pay.paid_at DESC, pay.id DESC
		LIMIT 1`, s.UserID,
	).Scan(&orderID, &method, &status)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.Log.Error("failed to load latest payment", zap.Int64("user_id", s.UserID), zap.Error(err))
	}

	h.render(c, "payment_success.html", gin.H{
		"Title":           "Payment",
		"OrderID":         orderID,
		"AwaitingGateway": err == nil && method == models.MethodMpesa && status == models.PaymentPending,
	})
}

// PesapalIPN is the handler for GET|POST /payments/pesapal/ipn/
// The gateway calls it; there is no session. Only a CallbackVerifier may decide
// the outcome, so without one the endpoint answers 501 and changes nothing.
func (h *Handlers) PesapalIPN(c *gin.Context) {
	ctx := c.Request.Context()

	// 1. --- Verify With the Gateway ---
	// Query parameters alone prove nothing: anyone can call this URL. The
	// verifier asks the gateway itself what happened to the reference.
	conf, err := h.verifier().Verify(ctx, c.Request)
	if err != nil {
		if errors.Is(err, payments.ErrVerificationUnavailable) {
			h.Log.Warn("gateway callback ignored: verification is not configured",
				zap.String("reference", c.Query("pesapal_merchant_reference")))
			c.String(http.StatusNotImplemented, "callback verification is not configured")
			return
		}
		h.Log.Warn("gateway callback rejected", zap.Error(err))
		c.String(http.StatusBadRequest, "invalid callback")
		return
	}

	// 2. --- Find the Pending Payment ---
	// Only mpesa payments carry a gateway reference in transaction_id.
	var (
		paymentID int64
		orderID   int64
		userID    int64
		amount    decimal.Decimal
		status    models.PaymentStatus
	)
	err = h.DB.QueryRowContext(ctx, `
		SELECT pay.id, pay.order_id, o.user_id, pay.amount, pay.status
		FROM payments pay
		JOIN orders o ON o.id = pay.order_id
		WHERE pay.transaction_id = ? AND pay.method = ?`,
		conf.Reference, models.MethodMpesa,
	).Scan(&paymentID, &orderID, &userID, &amount, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.String(http.StatusNotFound, "unknown reference")
			return
		}
		h.Log.Error("failed to load payment for callback", zap.String("reference", conf.Reference), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	// The gateway must confirm the amount we recorded, not whatever the
	// buyer may have edited into the redirect URL.
	if err := payments.CheckAmount(conf, amount); err != nil {
		h.Log.Warn("gateway callback amount mismatch",
			zap.Int64("order_id", orderID),
			zap.String("recorded", amount.StringFixed(2)),
			zap.String("confirmed", conf.Amount.StringFixed(2)),
		)
		c.String(http.StatusConflict, "amount mismatch")
		return
	}

	// Already settled, or the gateway has nothing final to report yet.
	if status != models.PaymentPending || conf.Status == models.PaymentPending {
		c.String(http.StatusOK, ipnAck(conf))
		return
	}
	if !conf.Status.Valid() {
		c.String(http.StatusBadRequest, "invalid status")
		return
	}

	// 3. --- Settle ---
	// Payment status and (on approval) the shipped order change together.
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.Log.Error("failed to start transaction", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback() // Safety net

	if _, err := tx.ExecContext(ctx, "UPDATE payments SET status = ? WHERE id = ?", conf.Status, paymentID); err != nil {
		h.Log.Error("failed to update payment", zap.Int64("payment_id", paymentID), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	if conf.Status == models.PaymentApproved {
		if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", models.OrderShipped, orderID); err != nil {
			h.Log.Error("failed to ship order", zap.Int64("order_id", orderID), zap.Error(err))
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
	}
	if err := tx.Commit(); err != nil {
		h.Log.Error("failed to commit callback", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	h.Log.Info("gateway payment settled", zap.Int64("order_id", orderID), zap.String("status", string(conf.Status)))
	h.publish(ctx, events.New(events.PaymentStatusChanged, orderID, userID, map[string]interface{}{
		"status":     conf.Status,
		"trackingId": conf.TrackingID,
	}))
	if conf.Status == models.PaymentApproved {
		h.publish(ctx, events.New(events.OrderStatusChanged, orderID, userID, map[string]interface{}{
			"status": models.OrderShipped,
		}))
	}

	c.String(http.StatusOK, ipnAck(conf))
}

// ipnAck echoes the notification back, which is how the gateway expects receipt to be acknowledged.
func ipnAck(conf *payments.Confirmation) string {
	v := url.Values{}
	v.Set("pesapal_notification_type", "CHANGE")
	v.Set("pesapal_transaction_tracking_id", conf.TrackingID)
	v.Set("pesapal_merchant_reference", conf.Reference)
	return v.Encode()
}

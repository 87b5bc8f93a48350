package handlers

import (
	"database/sql"
	"errors"
	"time"

	"github.com/01moynul/storefront-golang/internal/database"
	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/01moynul/storefront-golang/internal/web"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//
// --- Admin Order Management ---
//

// OrderUpdateInput is the admin dashboard form. Either status may be left empty.
type OrderUpdateInput struct {
	OrderID       int64                `form:"order_id" binding:"required,gt=0"`
	Status        models.OrderStatus   `form:"status"`
	PaymentStatus models.PaymentStatus `form:"payment_status"`
}

// UpdateOrder is the handler for POST /admin-dashboard/
// It sets the order status and/or the payment status. When no payment exists
// yet, setting a payment status records a cash payment for the order total.
func (h *Handlers) UpdateOrder(c *gin.Context) {
	const back = "/admin-dashboard/"
	ctx := c.Request.Context()

	// 1. --- Bind & Validate ---
	// Both selects default to "" (leave unchanged). Any non-empty value must
	// be one of the known statuses before anything is written.
	var input OrderUpdateInput
	if err := c.ShouldBind(&input); err != nil {
		flash.Errorf(c, "Order not found.")
		h.redirect(c, back)
		return
	}
	if input.Status != "" && !input.Status.Valid() {
		flash.Errorf(c, "Invalid order status.")
		h.redirect(c, back)
		return
	}
	if input.PaymentStatus != "" && !input.PaymentStatus.Valid() {
		flash.Errorf(c, "Invalid payment status.")
		h.redirect(c, back)
		return
	}

	// 2. --- Load the Order ---
	// A zero user id means no ownership filter: admins manage every order.
	order, err := h.getOrder(ctx, h.DB, input.OrderID, 0)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			flash.Errorf(c, "Order not found.")
			h.redirect(c, back)
			return
		}
		h.fail(c, back, "failed to load order", err)
		return
	}
	if input.Status == "" && input.PaymentStatus == "" {
		flash.Infof(c, "Nothing to update for Order #%d.", order.ID)
		h.redirect(c, back)
		return
	}

	// 3. --- Apply Both Changes Together ---
	// One transaction, so a failed payment update never leaves a half-applied
	// order status behind.
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.fail(c, back, "failed to start transaction", err)
		return
	}
	defer tx.Rollback() // Safety net

	if input.Status != "" {
		if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", input.Status, order.ID); err != nil {
			h.fail(c, back, "failed to update order status", err)
			return
		}
	}

	// Orders paid offline at the counter have no payment row yet; setting a
	// payment status records one as cash for the current order total.
	createdPayment := false
	if input.PaymentStatus != "" {
		if order.HasPayment() {
			_, err = tx.ExecContext(ctx, "UPDATE payments SET status = ? WHERE id = ?", input.PaymentStatus, order.Payment.ID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO payments (order_id, amount, method, status, paid_at, transaction_id)
				VALUES (?, ?, ?, ?, ?, NULL)`,
				order.ID, order.Total(), models.MethodCash, input.PaymentStatus, time.Now().UTC(),
			)
			createdPayment = true
		}
		if err != nil {
			if database.IsDuplicateEntry(err) {
				flash.Infof(c, "A payment for Order #%d was just recorded. Please try again.", order.ID)
				h.redirect(c, back)
				return
			}
			h.fail(c, back, "failed to update payment status", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.fail(c, back, "failed to commit order update", err)
		return
	}

	// 4. --- Notices & Events ---
	// Only after commit: events must never describe a rolled-back change.
	if input.Status != "" {
		h.Log.Info("order status updated", zap.Int64("order_id", order.ID), zap.String("status", string(input.Status)))
		h.publish(ctx, events.New(events.OrderStatusChanged, order.ID, order.UserID, map[string]interface{}{
			"status": input.Status,
			"from":   order.Status,
		}))
		flash.Successf(c, "Order #%d status updated to %s.", order.ID, web.Title(input.Status))
	}
	if input.PaymentStatus != "" {
		h.Log.Info("payment status updated", zap.Int64("order_id", order.ID), zap.String("status", string(input.PaymentStatus)), zap.Bool("created", createdPayment))
		eventType := events.PaymentStatusChanged
		attrs := map[string]interface{}{"status": input.PaymentStatus}
		if createdPayment {
			eventType = events.PaymentRecorded
			attrs["method"] = models.MethodCash
			attrs["amount"] = order.Total().StringFixed(2)
		}
		h.publish(ctx, events.New(eventType, order.ID, order.UserID, attrs))
		flash.Successf(c, "Payment status for Order #%d updated to %s.", order.ID, web.Title(input.PaymentStatus))
	}
	h.redirect(c, back)
}

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//
// --- Order Handlers (User-Only) ---
//

// PlaceOrder is the handler for GET /place-order/:productId/
// It creates a pending order holding one unit of the product.
func (h *Handlers) PlaceOrder(c *gin.Context) {
	s := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	// 1. --- Find the Product ---
	productID, ok := idParam(c, "productId")
	if !ok {
		flash.Errorf(c, "Product not found.")
		h.redirect(c, "/dashboard/")
		return
	}
	product, err := h.getProduct(ctx, h.DB, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			flash.Errorf(c, "Product not found.")
			h.redirect(c, "/dashboard/")
			return
		}
		h.fail(c, "/dashboard/", "failed to load product", err)
		return
	}

	// 2. --- Order + Item in One Transaction ---
	// An order without its item would have a zero total and could be
	// "paid" for nothing, so both rows commit or neither does.
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.fail(c, "/dashboard/", "failed to start transaction", err)
		return
	}
	defer tx.Rollback() // Safety net

	res, err := tx.ExecContext(ctx,
		"INSERT INTO orders (user_id, status, created_at) VALUES (?, ?, ?)",
		s.UserID, models.OrderPending, time.Now().UTC(),
	)
	if err != nil {
		h.fail(c, "/dashboard/", "failed to create order", err)
		return
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		h.fail(c, "/dashboard/", "failed to read new order id", err)
		return
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO order_items (order_id, product_id, quantity) VALUES (?, ?, ?)",
		orderID, product.ID, 1,
	); err != nil {
		h.fail(c, "/dashboard/", "failed to create order item", err)
		return
	}
	if err := tx.Commit(); err != nil {
		h.fail(c, "/dashboard/", "failed to commit order", err)
		return
	}

	h.Log.Info("order placed", zap.Int64("order_id", orderID), zap.Int64("user_id", s.UserID), zap.Int64("product_id", product.ID))
	h.publish(ctx, events.New(events.OrderPlaced, orderID, s.UserID, map[string]interface{}{
		"productId": product.ID,
		"quantity":  1,
		"total":     product.Price.StringFixed(2),
	}))

	flash.Successf(c, "Your order for %s has been submitted! Proceed to payment.", product.Name)
	h.redirect(c, fmt.Sprintf("/pay/%d/", orderID))
}

//
// --- Order Loading ---
//
// Orders come back from one LEFT JOIN over payments and items. Each row carries
// the order columns plus at most one item, and the rows are folded per order.
//

const orderSelect = `
	SELECT o.id, o.user_id, u.username, o.status, o.created_at,
		pay.id, pay.amount, pay.method, pay.status, pay.paid_at, pay.transaction_id,
		oi.id, oi.product_id, oi.quantity, p.name, p.price
	FROM orders o
	JOIN users u ON u.id = o.user_id
	LEFT JOIN payments pay ON pay.order_id = o.id
	LEFT JOIN order_items oi ON oi.order_id = o.id
	LEFT JOIN products p ON p.id = oi.product_id`

const orderOrdering = " ORDER BY o.created_at DESC, o.id DESC, oi.id"

// listOrders returns orders newest first. A zero userID lists every user's orders.
func (h *Handlers) listOrders(ctx context.Context, q Querier, userID int64) ([]*models.Order, error) {
	if userID == 0 {
		return h.queryOrders(ctx, q, orderSelect+orderOrdering)
	}
	return h.queryOrders(ctx, q, orderSelect+" WHERE o.user_id = ?"+orderOrdering, userID)
}

// getOrder returns sql.ErrNoRows when the order does not exist or, with a
// non-zero userID, belongs to someone else.
func (h *Handlers) getOrder(ctx context.Context, q Querier, orderID, userID int64) (*models.Order, error) {
	var (
		orders []*models.Order
		err    error
	)
	if userID == 0 {
		orders, err = h.queryOrders(ctx, q, orderSelect+" WHERE o.id = ?"+orderOrdering, orderID)
	} else {
		orders, err = h.queryOrders(ctx, q, orderSelect+" WHERE o.id = ? AND o.user_id = ?"+orderOrdering, orderID, userID)
	}
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, sql.ErrNoRows
	}
	return orders[0], nil
}

func (h *Handlers) queryOrders(ctx context.Context, q Querier, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	byID := make(map[int64]*models.Order)

	for rows.Next() {
		var (
			o models.Order

			payID     sql.NullInt64
			payAmount decimal.NullDecimal
			payMethod sql.NullString
			payStatus sql.NullString
			payPaidAt sql.NullTime
			payTxID   sql.NullString

			itemID      sql.NullInt64
			itemProduct sql.NullInt64
			itemQty     sql.NullInt64
			productName sql.NullString
			price       decimal.NullDecimal
		)
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Username, &o.Status, &o.CreatedAt,
			&payID, &payAmount, &payMethod, &payStatus, &payPaidAt, &payTxID,
			&itemID, &itemProduct, &itemQty, &productName, &price,
		); err != nil {
			return nil, err
		}

		order, seen := byID[o.ID]
		if !seen {
			order = &o
			if payID.Valid {
				order.Payment = &models.Payment{
					ID:      payID.Int64,
					OrderID: o.ID,
					Amount:  payAmount.Decimal,
					Method:  models.PaymentMethod(payMethod.String),
					Status:  models.PaymentStatus(payStatus.String),
					PaidAt:  payPaidAt.Time,
				}
				if payTxID.Valid {
					txID := payTxID.String
					order.Payment.TransactionID = &txID
				}
			}
			byID[o.ID] = order
			orders = append(orders, order)
		}

		if itemID.Valid {
			order.Items = append(order.Items, models.OrderItem{
				ID:           itemID.Int64,
				OrderID:      order.ID,
				ProductID:    itemProduct.Int64,
				Quantity:     int(itemQty.Int64),
				ProductName:  productName.String,
				ProductPrice: price.Decimal,
			})
		}
	}
	return orders, rows.Err()
}

package handlers

import (
	"context"

	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Dashboards ---
//

const recentLoginsLimit = 10

// DashboardStats are the counters at the top of the admin dashboard.
type DashboardStats struct {
	TotalProducts int
	TotalOrders   int
	TotalPayments int
	PendingOrders int
}

// UserDashboard is the handler for GET /dashboard/
func (h *Handlers) UserDashboard(c *gin.Context) {
	s := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	products, err := h.listProducts(ctx, h.DB)
	if err != nil {
		h.fail(c, "/", "failed to list products", err)
		return
	}
	orders, err := h.listOrders(ctx, h.DB, s.UserID)
	if err != nil {
		h.fail(c, "/", "failed to list orders", err)
		return
	}

	h.render(c, "user_dashboard.html", gin.H{
		"Title":    "Dashboard",
		"Products": products,
		"Orders":   orders,
	})
}

// AdminDashboard is the handler for GET /admin-dashboard/
func (h *Handlers) AdminDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.dashboardStats(ctx, h.DB)
	if err != nil {
		h.fail(c, "/", "failed to count dashboard stats", err)
		return
	}
	orders, err := h.listOrders(ctx, h.DB, 0)
	if err != nil {
		h.fail(c, "/", "failed to list orders", err)
		return
	}
	logins, err := h.recentLogins(ctx, h.DB, recentLoginsLimit)
	if err != nil {
		h.fail(c, "/", "failed to list recent logins", err)
		return
	}

	h.render(c, "admin_dashboard.html", gin.H{
		"Title":           "Admin dashboard",
		"Stats":           stats,
		"Orders":          orders,
		"RecentLogins":    logins,
		"OrderStatuses":   []models.OrderStatus{models.OrderPending, models.OrderShipped, models.OrderDelivered, models.OrderCancelled},
		"PaymentStatuses": []models.PaymentStatus{models.PaymentPending, models.PaymentApproved, models.PaymentRejected},
	})
}

func (h *Handlers) dashboardStats(ctx context.Context, q Querier) (*DashboardStats, error) {
	stats := &DashboardStats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM products", &stats.TotalProducts},
		{"SELECT COUNT(*) FROM orders", &stats.TotalOrders},
		{"SELECT COUNT(*) FROM payments", &stats.TotalPayments},
		{"SELECT COUNT(*) FROM orders WHERE status = 'pending'", &stats.PendingOrders},
	}
	for _, cnt := range counts {
		if err := q.QueryRowContext(ctx, cnt.query).Scan(cnt.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (h *Handlers) recentLogins(ctx context.Context, q Querier, limit int) ([]models.LoginHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT lh.id, lh.user_id, u.username, lh.login_time, lh.logout_time, lh.ip_address
		FROM login_history lh
		JOIN users u ON u.id = lh.user_id
		ORDER BY lh.login_time DESC, lh.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logins []models.LoginHistory
	for rows.Next() {
		var lh models.LoginHistory
		if err := rows.Scan(&lh.ID, &lh.UserID, &lh.Username, &lh.LoginTime, &lh.LogoutTime, &lh.IPAddress); err != nil {
			return nil, err
		}
		logins = append(logins, lh)
	}
	return logins, rows.Err()
}

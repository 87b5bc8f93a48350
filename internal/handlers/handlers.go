package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/01moynul/storefront-golang/internal/auth"
	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB        *sql.DB
	Log       *zap.Logger
	Tokens    *auth.TokenManager
	Cookie    auth.Cookie
	Gateway   payments.Gateway
	Verifier  payments.CallbackVerifier // nil means gateway callbacks are refused
	Events    events.Publisher          // nil means events are dropped
	UploadDir string
	BaseURL   string // used for the gateway callback; derived from the request when empty
}

// Querier is implemented by both *sql.DB and *sql.Tx,
// so read helpers can run in or out of a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const genericFailure = "Something went wrong. Please try again."

// render fills the values every page needs and writes the template.
func (h *Handlers) render(c *gin.Context, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Session"] = middleware.CurrentSession(c)
	data["Messages"] = flash.Pop(c)
	c.HTML(http.StatusOK, name, data)
}

// fail logs an unexpected error and sends the caller somewhere safe with a generic notice.
func (h *Handlers) fail(c *gin.Context, to, msg string, err error) {
	h.Log.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	flash.Errorf(c, genericFailure)
	c.Redirect(http.StatusFound, to)
}

func (h *Handlers) redirect(c *gin.Context, to string) {
	c.Redirect(http.StatusFound, to)
}

// publish sends an event after a committed write. Delivery failures never fail the request.
func (h *Handlers) publish(ctx context.Context, e events.Event) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(ctx, e); err != nil {
		h.Log.Warn("failed to publish event", zap.String("type", e.Type), zap.Int64("order_id", e.OrderID), zap.Error(err))
	}
}

func (h *Handlers) verifier() payments.CallbackVerifier {
	if h.Verifier == nil {
		return payments.UnverifiedCallbacks{}
	}
	return h.Verifier
}

// absoluteURL turns a route path into a URL the payment gateway can call back.
func (h *Handlers) absoluteURL(c *gin.Context, path string) string {
	if h.BaseURL != "" {
		return strings.TrimRight(h.BaseURL, "/") + path
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + path
}

// idParam parses a positive numeric path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// invalidFields lists the form fields that failed their binding tags, for logging.
func invalidFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}

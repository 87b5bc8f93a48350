package handlers_test

import (
	"bytes"
	"context"
	"database/sql/driver"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/01moynul/storefront-golang/internal/auth"
	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/handlers"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/01moynul/storefront-golang/internal/payments"
	"github.com/01moynul/storefront-golang/internal/routes"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const gatewayURL = "https://pay.example.com/API/PostPesapalDirectOrderV4"

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubVerifier struct {
	conf *payments.Confirmation
	err  error
}

func (v stubVerifier) Verify(context.Context, *http.Request) (*payments.Confirmation, error) {
	return v.conf, v.err
}

type testApp struct {
	h      *handlers.Handlers
	mock   sqlmock.Sqlmock
	events *recordingPublisher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &recordingPublisher{}
	h := &handlers.Handlers{
		DB:        db,
		Log:       zap.NewNop(),
		Tokens:    auth.NewTokenManager("test-secret", time.Hour),
		Cookie:    auth.Cookie{Name: "storefront_session", TTL: time.Hour},
		Gateway:   payments.Gateway{PostURL: gatewayURL, Currency: "KES"},
		Events:    pub,
		UploadDir: t.TempDir(),
	}
	return &testApp{h: h, mock: mock, events: pub}
}

// loginAs issues a session token and expects the middleware's session lookup.
func (a *testApp) loginAs(t *testing.T, userID, sessionID int64, username string, role models.Role) string {
	t.Helper()
	token, err := a.h.Tokens.Issue(userID, role, sessionID)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "role", "login_time"}).
		AddRow(userID, username, username+"@example.com", "Una", "User", string(role), time.Now())
	a.mock.ExpectQuery(regexp.QuoteMeta("FROM login_history lh")).
		WithArgs(sessionID, userID).
		WillReturnRows(rows)
	return token
}

func (a *testApp) do(method, path, token string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return a.send(req, token)
}

func (a *testApp) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: a.h.Cookie.Name, Value: token})
	}
	rec := httptest.NewRecorder()
	routes.SetupRouter(a.h).ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// flashes returns the notices queued by the response. Each write of the flash
// cookie carries the full list, so the last one wins.
func flashes(rec *httptest.ResponseRecorder) []flash.Message {
	var msgs []flash.Message
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == flash.CookieName && ck.Value != "" {
			msgs = flash.Decode(ck.Value)
		}
	}
	return msgs
}

func flashTexts(rec *httptest.ResponseRecorder) []string {
	var out []string
	for _, m := range flashes(rec) {
		out = append(out, m.Text)
	}
	return out
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// decimalArg matches a SQL argument holding the given amount, whatever its scale.
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return got.Equal(decimal.RequireFromString(string(d)))
}

type prefixArg string

func (p prefixArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, string(p))
}

var orderColumns = []string{
	"id", "user_id", "username", "status", "created_at",
	"pay_id", "pay_amount", "pay_method", "pay_status", "pay_paid_at", "pay_transaction_id",
	"item_id", "product_id", "quantity", "product_name", "product_price",
}

// unpaidOrder is order 21 of user 5 holding one Widget at 10.00.
func unpaidOrder() *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns).AddRow(
		int64(21), int64(5), "u1", "pending", time.Now(),
		nil, nil, nil, nil, nil, nil,
		int64(41), int64(3), int64(1), "Widget", "10.00",
	)
}

func paidOrder(method, status string) *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns).AddRow(
		int64(21), int64(5), "u1", "pending", time.Now(),
		int64(31), "10.00", method, status, time.Now(), nil,
		int64(41), int64(3), int64(1), "Widget", "10.00",
	)
}

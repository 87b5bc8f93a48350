package handlers_test

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/01moynul/storefront-golang/internal/events"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/01moynul/storefront-golang/internal/payments"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectOwnOrder(app *testApp, rows *sqlmock.Rows) {
	app.mock.ExpectQuery(regexp.QuoteMeta("FROM orders o")).
		WithArgs(int64(21), int64(5)).
		WillReturnRows(rows)
}

func TestShowPaymentPage(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())

	rec := app.do(http.MethodGet, "/pay/21/", token, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Total: <strong>10.00</strong>")
	assert.Contains(t, rec.Body.String(), `action="/process-payment/21/"`)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestShowPaymentPage_PaymentExists(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, paidOrder("cash", "approved"))

	rec := app.do(http.MethodGet, "/pay/21/", token, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Payment already exists for this order."}, flashTexts(rec))
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestShowPaymentPage_OtherUsersOrder(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, sqlmock.NewRows(orderColumns))

	rec := app.do(http.MethodGet, "/pay/21/", token, nil)

	assert.Equal(t, "/dashboard/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Order not found."}, flashTexts(rec))
}

func TestProcessPayment_Cash(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())
	app.mock.ExpectBegin()
	app.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(int64(21), decimalArg("10.00"), "cash", "approved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(31, 1))
	app.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ?")).
		WithArgs("shipped", int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectCommit()

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{"method": {"cash"}})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/payment-success/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Payment successful! Your order will be processed shortly."}, flashTexts(rec))
	assert.Equal(t, []string{events.PaymentRecorded, events.OrderStatusChanged}, app.events.types())
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestProcessPayment_Mpesa(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())
	app.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(int64(21), decimalArg("10.00"), "mpesa", "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(31, 1))

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{"method": {"mpesa"}})

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", location.Host)

	q := location.Query()
	assert.Equal(t, "10.00", q.Get("amount"))
	assert.Equal(t, "Order #21 payment", q.Get("description"))
	assert.Equal(t, "MERCHANT", q.Get("type"))
	assert.Equal(t, "KES", q.Get("currency"))
	assert.Equal(t, "u1@example.com", q.Get("email"))
	assert.Equal(t, "http://example.com/payment-success/", q.Get("callback_url"))
	_, err = uuid.Parse(q.Get("reference"))
	assert.NoError(t, err)

	require.Len(t, app.events.events, 1)
	assert.Equal(t, q.Get("reference"), app.events.events[0].Attributes["reference"])
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestProcessPayment_MissingMethod(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{})

	assert.Equal(t, "/pay/21/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Please select a payment method."}, flashTexts(rec))
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestProcessPayment_UnknownMethod(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{"method": {"bitcoin"}})

	assert.Equal(t, "/pay/21/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Unsupported payment method."}, flashTexts(rec))
}

func TestProcessPayment_AlreadyPaid(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, paidOrder("mpesa", "pending"))

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{"method": {"cash"}})

	assert.Equal(t, "/dashboard/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Payment already processed."}, flashTexts(rec))
	assert.Empty(t, app.events.events)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestProcessPayment_ConcurrentDoubleSubmit(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())
	app.mock.ExpectBegin()
	app.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '21' for key 'order_id'"})
	app.mock.ExpectRollback()

	rec := app.do(http.MethodPost, "/process-payment/21/", token, url.Values{"method": {"card"}})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Payment already processed."}, flashTexts(rec))
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestProcessPayment_GetRedirectsToPaymentPage(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	expectOwnOrder(app, unpaidOrder())

	rec := app.do(http.MethodGet, "/process-payment/21/", token, nil)

	assert.Equal(t, "/pay/21/", rec.Header().Get("Location"))
}

func TestPaymentSuccess_PendingMpesa(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	app.mock.ExpectQuery(regexp.QuoteMeta("FROM payments pay")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "method", "status"}).AddRow(int64(21), "mpesa", "pending"))

	rec := app.do(http.MethodGet, "/payment-success/", token, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order #21 is pending")
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestPaymentSuccess_Approved(t *testing.T) {
	app := newTestApp(t)
	token := app.loginAs(t, 5, 11, "u1", models.RoleUser)
	app.mock.ExpectQuery(regexp.QuoteMeta("FROM payments pay")).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "method", "status"}).AddRow(int64(21), "cash", "approved"))

	rec := app.do(http.MethodGet, "/payment-success/", token, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thank you!")
	assert.NotContains(t, rec.Body.String(), "is pending")
}

func TestPesapalIPN_WithoutVerifier(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(http.MethodGet, "/payments/pesapal/ipn/?pesapal_merchant_reference=abc&pesapal_transaction_tracking_id=t1", "", nil)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func expectPaymentByReference(app *testApp, status string) {
	app.mock.ExpectQuery(regexp.QuoteMeta("WHERE pay.transaction_id = ? AND pay.method = ?")).
		WithArgs("ref-1", "mpesa").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "user_id", "amount", "status"}).
			AddRow(int64(31), int64(21), int64(5), "10.00", status))
}

func confirmation(amount string, status models.PaymentStatus) *payments.Confirmation {
	return &payments.Confirmation{
		Reference:  "ref-1",
		TrackingID: "track-1",
		Amount:     decimal.RequireFromString(amount),
		Status:     status,
	}
}

func TestPesapalIPN_Approved(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{conf: confirmation("10", models.PaymentApproved)}
	expectPaymentByReference(app, "pending")
	app.mock.ExpectBegin()
	app.mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = ?")).
		WithArgs("approved", int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ?")).
		WithArgs("shipped", int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectCommit()

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pesapal_merchant_reference=ref-1")
	assert.Equal(t, []string{events.PaymentStatusChanged, events.OrderStatusChanged}, app.events.types())
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestPesapalIPN_Rejected(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{conf: confirmation("10.00", models.PaymentRejected)}
	expectPaymentByReference(app, "pending")
	app.mock.ExpectBegin()
	app.mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status = ?")).
		WithArgs("rejected", int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectCommit()

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{events.PaymentStatusChanged}, app.events.types())
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestPesapalIPN_AmountMismatch(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{conf: confirmation("1.00", models.PaymentApproved)}
	expectPaymentByReference(app, "pending")

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, app.events.events)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestPesapalIPN_AlreadySettled(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{conf: confirmation("10.00", models.PaymentApproved)}
	expectPaymentByReference(app, "approved")

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, app.events.events)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestPesapalIPN_VerificationFails(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{err: errors.New("status query failed")}

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPesapalIPN_UnknownReference(t *testing.T) {
	app := newTestApp(t)
	app.h.Verifier = stubVerifier{conf: confirmation("10.00", models.PaymentApproved)}
	app.mock.ExpectQuery(regexp.QuoteMeta("WHERE pay.transaction_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "user_id", "amount", "status"}))

	rec := app.do(http.MethodPost, "/payments/pesapal/ipn/", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package ingest

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llenotre/gateway/pkg/access"
	"github.com/llenotre/gateway/pkg/geoip"
	"github.com/llenotre/gateway/pkg/logging"
	"github.com/llenotre/gateway/pkg/monitoring"
	"github.com/llenotre/gateway/pkg/ratelimit"
	"github.com/llenotre/gateway/pkg/uaparser"
)

type fakeRateLimiter struct{ allow bool }

func (f fakeRateLimiter) Allow(string) bool { return f.allow }

type fakeDBSource struct{ db *sql.DB }

func (f fakeDBSource) Handle() *sql.DB { return f.db }

type fakeGeoResolver struct {
	loc *geoip.UserGeolocation
	err error
}

func (f fakeGeoResolver) Resolve(net.IP) (*geoip.UserGeolocation, error) { return f.loc, f.err }

type fakeGeoSource struct{ resolver GeoResolver }

func (f fakeGeoSource) Read() GeoResolver { return f.resolver }

type fakeDeviceResolver struct{ device uaparser.UserDevice }

func (f fakeDeviceResolver) Resolve(string) uaparser.UserDevice { return f.device }

type fakeDeviceSource struct{ resolver DeviceResolver }

func (f fakeDeviceSource) Read() DeviceResolver { return f.resolver }

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func newTestHandler(t *testing.T, db *sql.DB, geo GeoResolver, ua DeviceResolver) *Handler {
	t.Helper()
	mc := monitoring.NewMetricsCollector("ingest-test-"+t.Name(), "dev", "abc")
	return New(fakeDBSource{db: db}, fakeGeoSource{resolver: geo}, fakeDeviceSource{resolver: ua}, logging.New(), NewMetrics(mc), fakeRateLimiter{allow: true})
}

func TestPutAccessUnparseableCredentialsReturns401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	h := newTestHandler(t, db, fakeGeoResolver{}, fakeDeviceResolver{})

	router := gin.New()
	router.PUT("/access", h.PutAccess)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader([]byte("[]")))
	req.Header.Set("Authorization", basicAuthHeader("not-a-uuid", "also-not"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPutAccessUnknownPropertyReturns401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	propertyUUID := uuid.New()
	secret := uuid.New()
	mock.ExpectQuery(`SELECT uuid FROM property`).
		WithArgs(propertyUUID, secret).
		WillReturnError(sql.ErrNoRows)

	h := newTestHandler(t, db, fakeGeoResolver{}, fakeDeviceResolver{})
	router := gin.New()
	router.PUT("/access", h.PutAccess)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader([]byte("[]")))
	req.Header.Set("Authorization", basicAuthHeader(propertyUUID.String(), secret.String()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPutAccessDBErrorOnAuthReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	propertyUUID := uuid.New()
	secret := uuid.New()
	mock.ExpectQuery(`SELECT uuid FROM property`).
		WithArgs(propertyUUID, secret).
		WillReturnError(sql.ErrConnDone)

	h := newTestHandler(t, db, fakeGeoResolver{}, fakeDeviceResolver{})
	router := gin.New()
	router.PUT("/access", h.PutAccess)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader([]byte("[]")))
	req.Header.Set("Authorization", basicAuthHeader(propertyUUID.String(), secret.String()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPutAccessHappyPathEnrichesAndInserts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	propertyUUID := uuid.New()
	secret := uuid.New()
	mock.ExpectQuery(`SELECT uuid FROM property`).
		WithArgs(propertyUUID, secret).
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow(propertyUUID))

	country := "US"
	geo := &geoip.UserGeolocation{Country: &country}
	device := uaparser.UserDevice{DeviceFamily: "Other", OSFamily: "Other", AgentFamily: "Firefox"}

	mock.ExpectExec(`INSERT INTO analytics`).
		WithArgs(propertyUUID, sqlmock.AnyArg(), "8.8.8.8", "Mozilla/5.0 (X11; Linux x86_64)", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), "GET", "/").
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := newTestHandler(t, db, fakeGeoResolver{loc: geo}, fakeDeviceResolver{device: device})
	router := gin.New()
	router.PUT("/access", h.PutAccess)

	peerAddr := "8.8.8.8"
	userAgent := "Mozilla/5.0 (X11; Linux x86_64)"
	batch := []access.Access{{PeerAddr: &peerAddr, UserAgent: &userAgent, Method: "GET", URI: "/"}}
	body, _ := json.Marshal(batch)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader(body))
	req.Header.Set("Authorization", basicAuthHeader(propertyUUID.String(), secret.String()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPutAccessRateLimitedReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	propertyUUID := uuid.New()
	secret := uuid.New()
	mock.ExpectQuery(`SELECT uuid FROM property`).
		WithArgs(propertyUUID, secret).
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow(propertyUUID))

	mc := monitoring.NewMetricsCollector("ingest-test-"+t.Name(), "dev", "abc")
	h := New(fakeDBSource{db: db}, fakeGeoSource{resolver: fakeGeoResolver{}}, fakeDeviceSource{resolver: fakeDeviceResolver{}}, logging.New(), NewMetrics(mc), fakeRateLimiter{allow: false})
	router := gin.New()
	router.PUT("/access", h.PutAccess)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader([]byte("[]")))
	req.Header.Set("Authorization", basicAuthHeader(propertyUUID.String(), secret.String()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestRateLimiterKeyedByPropertyNotIP(t *testing.T) {
	l := ratelimit.New(1, 1)
	propertyUUID := uuid.New().String()

	if !l.Allow(ratelimit.PropertyKey(propertyUUID)) {
		t.Fatal("expected first request for a fresh property key to be allowed")
	}
	if l.Allow(ratelimit.PropertyKey(propertyUUID)) {
		t.Fatal("expected second immediate request for the same property key to be denied")
	}
	if !l.Allow(ratelimit.IPKey("203.0.113.1")) {
		t.Fatal("expected an unrelated IP key to have its own independent bucket")
	}
}

func TestPutAccessInsertErrorReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	propertyUUID := uuid.New()
	secret := uuid.New()
	mock.ExpectQuery(`SELECT uuid FROM property`).
		WithArgs(propertyUUID, secret).
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow(propertyUUID))
	mock.ExpectExec(`INSERT INTO analytics`).WillReturnError(sql.ErrConnDone)

	h := newTestHandler(t, db, fakeGeoResolver{}, fakeDeviceResolver{})
	router := gin.New()
	router.PUT("/access", h.PutAccess)

	batch := []access.Access{{Method: "GET", URI: "/"}}
	body, _ := json.Marshal(batch)

	req := httptest.NewRequest(http.MethodPut, "/access", bytes.NewReader(body))
	req.Header.Set("Authorization", basicAuthHeader(propertyUUID.String(), secret.String()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

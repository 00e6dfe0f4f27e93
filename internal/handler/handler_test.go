package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/auth"
	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/repository"
	"rapidride/internal/repository/memory"
	"rapidride/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	tokens *auth.TokenManager
}

func newTestServer() *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := memory.NewUserRepository()
	rides := memory.NewRideRepository(users)
	tokens := auth.NewTokenManager("test-secret", "rapidride", time.Hour)
	notifications := service.NewNotificationService(logger)

	lifecycle := service.NewLifecycle(service.LifecycleDeps{Rides: rides, Notifier: notifications, Logger: logger})
	rideService := service.NewRideService(service.RideServiceDeps{Rides: rides, Users: users, Notifier: notifications, Logger: logger})
	driverService := service.NewDriverService(service.DriverServiceDeps{
		Users:     users,
		Rides:     rides,
		Positions: service.NewPositionRecorder(users, nil, logger, 0),
		Logger:    logger,
	})

	userHandler := NewUserHandler(service.NewAuthService(users, tokens, logger, 0), service.NewProfileService(users, 0))
	rideHandler := NewRideHandler(lifecycle, rideService, service.NewReceiptService(rides, users, 0))
	driverHandler := NewDriverHandler(lifecycle, driverService)
	supportHandler := NewSupportHandler(rideService, notifications)

	r := gin.New()
	r.POST("/auth/signup", userHandler.Signup)
	r.POST("/auth/login", userHandler.Login)

	api := r.Group("/api", middleware.Authenticate(tokens))
	api.POST("/rides/request", rideHandler.RequestRide)
	api.POST("/rides/estimate-fare", rideHandler.EstimateFare)
	api.GET("/rides/current", rideHandler.CurrentRide)
	api.GET("/rides/history", rideHandler.History)
	api.GET("/rides/:id", rideHandler.GetRide)
	api.POST("/rides/:id/cancel", rideHandler.CancelRide)
	api.GET("/rides/:id/invoice", rideHandler.Invoice)
	api.GET("/notifications", supportHandler.Notifications)
	api.POST("/support/request", supportHandler.SubmitSupportRequest)
	api.POST("/driver/rides/:id/accept", driverHandler.AcceptRide)
	api.POST("/driver/rides/:id/start", driverHandler.StartRide)
	api.POST("/driver/rides/:id/complete", driverHandler.CompleteRide)

	return &testServer{engine: r, tokens: tokens}
}

type testResponse struct {
	Code     int
	Envelope Envelope
	Raw      string
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) testResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	resp := testResponse{Code: w.Code, Raw: w.Body.String()}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp.Envelope); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, resp.Raw)
		}
	}
	return resp
}

// account signs up and logs in, returning the user id and token.
func (s *testServer) account(t *testing.T, email, role string) (string, string) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{
		"name": "Test", "email": email, "password": "secret123", "role": role,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", resp.Code, resp.Raw)
	}
	resp = s.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"email": email, "password": "secret123", "role": role,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	data := resp.Envelope.Data.(map[string]any)
	user := data["user"].(map[string]any)
	return user["id"].(string), data["token"].(string)
}

func (s *testServer) requestRide(t *testing.T, token string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/rides/request", token, gin.H{
		"pickup": "MG Road", "drop": "Airport",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("request ride: expected 201, got %d: %s", resp.Code, resp.Raw)
	}
	return resp.Envelope.Data.(map[string]any)["id"].(string)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer()

	t.Run("admin signup is forbidden", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{
			"name": "Root", "email": "root@example.com", "password": "secret123", "role": "admin",
		})
		if resp.Code != http.StatusForbidden || resp.Envelope.Success {
			t.Errorf("expected 403 failure, got %d: %s", resp.Code, resp.Raw)
		}
	})

	t.Run("driver signup exposes vehicle", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{
			"name": "Ravi", "email": "ravi@example.com", "password": "secret123", "role": "driver",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Raw)
		}
		data := resp.Envelope.Data.(map[string]any)
		if _, ok := data["vehicle"]; !ok {
			t.Errorf("expected vehicle on driver profile: %s", resp.Raw)
		}
		if _, ok := data["passwordHash"]; ok {
			t.Error("password hash must not be exposed")
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{
			"name": "Ravi", "email": "ravi@example.com", "password": "secret123", "role": "rider",
		})
		if resp.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.Code)
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/auth/login", "", gin.H{
			"email": "ravi@example.com", "password": "secret123", "role": "rider",
		})
		if resp.Code != http.StatusUnauthorized || resp.Envelope.Message != "Incorrect role selected" {
			t.Errorf("expected 401 Incorrect role selected, got %d: %s", resp.Code, resp.Raw)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestRideFlow(t *testing.T) {
	s := newTestServer()
	_, riderToken := s.account(t, "rider@example.com", "rider")
	_, otherToken := s.account(t, "other@example.com", "rider")
	driverID, driverToken := s.account(t, "driver@example.com", "driver")
	_, rivalToken := s.account(t, "rival@example.com", "driver")

	resp := s.do(t, http.MethodGet, "/api/rides/current", riderToken, nil)
	if resp.Code != http.StatusOK || resp.Envelope.Data != nil || resp.Envelope.Message != "no active ride" {
		t.Errorf("expected empty current ride, got %d: %s", resp.Code, resp.Raw)
	}

	rideID := s.requestRide(t, riderToken)

	resp = s.do(t, http.MethodPost, "/api/rides/request", riderToken, gin.H{"pickup": "A", "drop": "B"})
	if resp.Code != http.StatusConflict {
		t.Errorf("second request: expected 409, got %d", resp.Code)
	}

	resp = s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/accept", driverToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	if got := resp.Envelope.Data.(map[string]any)["driverId"]; got != driverID {
		t.Errorf("expected driver %s, got %v", driverID, got)
	}

	resp = s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/accept", rivalToken, nil)
	if resp.Code != http.StatusConflict || resp.Envelope.Message != "ride is not available" {
		t.Errorf("second accept: expected 409, got %d: %s", resp.Code, resp.Raw)
	}

	resp = s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/start", rivalToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("start by rival: expected 403, got %d", resp.Code)
	}

	resp = s.do(t, http.MethodGet, "/api/rides/"+rideID, otherToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("non-participant get: expected 403, got %d", resp.Code)
	}

	resp = s.do(t, http.MethodGet, "/api/rides/"+rideID, riderToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
	if _, ok := resp.Envelope.Data.(map[string]any)["driver"]; !ok {
		t.Errorf("expected driver summary: %s", resp.Raw)
	}

	resp = s.do(t, http.MethodGet, "/api/rides/"+rideID+"/invoice", riderToken, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("invoice before completion: expected 409, got %d", resp.Code)
	}

	if resp = s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/start", driverToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	resp = s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/complete", driverToken, gin.H{"distance": 10, "duration": 20})
	if resp.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	if fare := resp.Envelope.Data.(map[string]any)["fare"]; fare != 170.0 {
		t.Errorf("expected fare 170, got %v", fare)
	}

	resp = s.do(t, http.MethodPost, "/api/rides/"+rideID+"/cancel", riderToken, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("cancel completed: expected 409, got %d", resp.Code)
	}

	resp = s.do(t, http.MethodGet, "/api/rides/"+rideID+"/invoice?format=text", riderToken, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Raw, "RIDE INVOICE") {
		t.Errorf("text invoice: got %d: %s", resp.Code, resp.Raw)
	}

	resp = s.do(t, http.MethodGet, "/api/rides/history?page=1&limit=5", riderToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.Code)
	}
	if total := resp.Envelope.Data.(map[string]any)["total"]; total != 1.0 {
		t.Errorf("expected one ride in history, got %v", total)
	}

	resp = s.do(t, http.MethodGet, "/api/notifications", riderToken, nil)
	if resp.Code != http.StatusOK || len(resp.Envelope.Data.([]any)) == 0 {
		t.Errorf("expected rider notifications, got %d: %s", resp.Code, resp.Raw)
	}
}

func TestRideHandler_Validation(t *testing.T) {
	s := newTestServer()
	_, riderToken := s.account(t, "rider@example.com", "rider")

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing pickup", http.MethodPost, "/api/rides/request", gin.H{"drop": "B"}, http.StatusBadRequest},
		{"unknown ride", http.MethodGet, "/api/rides/missing", nil, http.StatusNotFound},
		{"bad page", http.MethodGet, "/api/rides/history?page=x", nil, http.StatusBadRequest},
		{"support without message", http.MethodPost, "/api/support/request", gin.H{"subject": "Hi"}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.do(t, tc.method, tc.path, riderToken, tc.body)
			if resp.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, resp.Code, resp.Raw)
			}
		})
	}

	resp := s.do(t, http.MethodGet, "/api/rides/missing", riderToken, nil)
	if resp.Envelope.Message != "resource not found" {
		t.Errorf("unexpected 404 message %q", resp.Envelope.Message)
	}
}

func TestEstimateFare(t *testing.T) {
	s := newTestServer()
	_, token := s.account(t, "rider@example.com", "rider")

	resp := s.do(t, http.MethodPost, "/api/rides/estimate-fare", token, gin.H{"rideType": "premium"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	data := resp.Envelope.Data.(map[string]any)
	if data["min"] != 250.0 || data["max"] != 313.0 {
		t.Errorf("expected 250-313, got %v-%v", data["min"], data["max"])
	}

	resp = s.do(t, http.MethodPost, "/api/rides/estimate-fare", "", gin.H{"rideType": "premium"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{service.ErrMissingAddress, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrNotAssignedDriver, http.StatusForbidden},
		{service.ErrRideNotAvailable, http.StatusConflict},
		{service.ErrDriverBusy, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", service.ErrActiveRideExists), http.StatusConflict},
		{errors.New("database is down"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Errorf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
	if len(c.Errors) != 1 {
		t.Errorf("expected the error recorded for logging, got %d", len(c.Errors))
	}
}

func TestToUserResponse_RiderHasNoDriverFields(t *testing.T) {
	t.Parallel()

	resp := toUserResponse(&domain.User{ID: "u-1", Role: domain.RoleRider, Online: true})
	if resp.Online != nil || resp.Vehicle != nil || resp.Documents != nil {
		t.Errorf("rider response carries driver fields: %+v", resp)
	}
}

// doChunked sends raw as a body of unknown length, the way a client
// streaming with Transfer-Encoding: chunked would.
func (s *testServer) doChunked(t *testing.T, path, token, raw string) testResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, io.MultiReader(strings.NewReader(raw)))
	if req.ContentLength != -1 {
		t.Fatalf("expected unknown content length, got %d", req.ContentLength)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	resp := testResponse{Code: w.Code, Raw: w.Body.String()}
	if err := json.Unmarshal(w.Body.Bytes(), &resp.Envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, resp.Raw)
	}
	return resp
}

func TestOptionalBodiesWithUnknownLength(t *testing.T) {
	s := newTestServer()
	_, riderToken := s.account(t, "rider@example.com", "rider")
	_, driverToken := s.account(t, "driver@example.com", "driver")

	rideID := s.requestRide(t, riderToken)
	resp := s.doChunked(t, "/api/rides/"+rideID+"/cancel", riderToken, `{"reason":"late"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	if got := resp.Envelope.Data.(map[string]any)["cancelReason"]; got != "late" {
		t.Errorf("expected cancel reason late, got %v", got)
	}

	rideID = s.requestRide(t, riderToken)
	if resp = s.doChunked(t, "/api/rides/"+rideID+"/cancel", riderToken, ""); resp.Code != http.StatusOK {
		t.Errorf("cancel with empty body: expected 200, got %d: %s", resp.Code, resp.Raw)
	}

	rideID = s.requestRide(t, riderToken)
	if resp = s.doChunked(t, "/api/rides/"+rideID+"/cancel", riderToken, "{bad"); resp.Code != http.StatusBadRequest {
		t.Errorf("cancel with malformed body: expected 400, got %d", resp.Code)
	}

	s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/accept", driverToken, nil)
	s.do(t, http.MethodPost, "/api/driver/rides/"+rideID+"/start", driverToken, nil)
	resp = s.doChunked(t, "/api/driver/rides/"+rideID+"/complete", driverToken, `{"distance":10,"duration":20}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	if fare := resp.Envelope.Data.(map[string]any)["fare"]; fare != 170.0 {
		t.Errorf("expected fare 170 from the streamed measurements, got %v", fare)
	}
}

func TestAcceptWhileOnAnotherRide(t *testing.T) {
	s := newTestServer()
	_, firstToken := s.account(t, "first@example.com", "rider")
	_, secondToken := s.account(t, "second@example.com", "rider")
	_, driverToken := s.account(t, "driver@example.com", "driver")

	first := s.requestRide(t, firstToken)
	second := s.requestRide(t, secondToken)

	if resp := s.do(t, http.MethodPost, "/api/driver/rides/"+first+"/accept", driverToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", resp.Code, resp.Raw)
	}
	resp := s.do(t, http.MethodPost, "/api/driver/rides/"+second+"/accept", driverToken, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("second accept: expected 409, got %d: %s", resp.Code, resp.Raw)
	}
}

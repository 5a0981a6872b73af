package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAppointments_ParsesBackendTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/appointments" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// The backend emits zone-less database timestamps.
		_, _ = w.Write([]byte(`[
			{"id": 1, "client_name": "Ana", "client_email": "ana@x.com", "appointment_time": "2026-09-01T09:30:00", "status": "confirmed"},
			{"id": 2, "client_name": "Bo", "client_email": "bo@x.com", "appointment_time": "2026-09-02T14:00:00+02:00", "status": "pending"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	appts, err := c.Appointments(context.Background(), "")
	if err != nil {
		t.Fatalf("Appointments failed: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	want := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	if !appts[0].AppointmentTime.Equal(want) {
		t.Fatalf("expected %s, got %s", want, appts[0].AppointmentTime)
	}
	if appts[0].DateKey() != "2026-09-01" {
		t.Fatalf("unexpected date key %s", appts[0].DateKey())
	}
	if appts[1].DateKey() != "2026-09-02" {
		t.Fatalf("date key must not shift with the timezone offset: %s", appts[1].DateKey())
	}
}

func TestAppointments_EmailFilter(t *testing.T) {
	var gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = r.URL.Query().Get("email")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if _, err := c.Appointments(context.Background(), "me@x.com"); err != nil {
		t.Fatalf("Appointments failed: %v", err)
	}
	if gotEmail != "me@x.com" {
		t.Fatalf("expected email query param, got %q", gotEmail)
	}
}

func TestCreateAppointment_SetsIdempotencyKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 5, "client_name": "Ana", "client_email": "ana@x.com", "appointment_time": "2026-09-01T09:30:00", "status": "pending"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	req := BookingRequest{
		ClientName:      "Ana",
		ClientEmail:     "ana@x.com",
		AppointmentDate: "2026-09-01",
		AppointmentTime: "09:30",
	}
	created, err := c.CreateAppointment(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	if created.ID != 5 {
		t.Fatalf("unexpected id %d", created.ID)
	}
	if _, err := c.CreateAppointment(context.Background(), req); err != nil {
		t.Fatalf("second CreateAppointment failed: %v", err)
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] == keys[1] {
		t.Fatalf("expected distinct non-empty idempotency keys, got %v", keys)
	}
}

func TestDo_SurfacesDetailOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail": "This time slot is no longer available"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.CreateAppointment(context.Background(), BookingRequest{ClientName: "Ana"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", apiErr.Status)
	}
	if apiErr.Detail != "This time slot is no longer available" {
		t.Fatalf("detail not surfaced verbatim: %q", apiErr.Detail)
	}
}

func TestCancelAppointment_SendsPutWithPayload(t *testing.T) {
	var gotBody CancelRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/appointments/7/cancel" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": "Appointment cancelled"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	err := c.CancelAppointment(context.Background(), 7, CancelRequest{
		CancellationReason: "client request",
		ClientEmail:        "ana@x.com",
		ClientName:         "Ana",
	})
	if err != nil {
		t.Fatalf("CancelAppointment failed: %v", err)
	}
	if gotBody.CancellationReason != "client request" || gotBody.ClientEmail != "ana@x.com" || gotBody.ClientName != "Ana" {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
}

func TestCancelAppointment_SurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Appointment not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	err := c.CancelAppointment(context.Background(), 99, CancelRequest{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Detail != "Appointment not found" {
		t.Fatalf("detail not surfaced: %+v", apiErr)
	}
}

func TestForgotPassword_PostsEmail(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/forgot-password" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if err := c.ForgotPassword(context.Background(), "ana@x.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if gotBody["email"] != "ana@x.com" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestLogin_DecodesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user": {"id": 3, "name": "Ana", "email": "ana@x.com"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	user, err := c.Login(context.Background(), "ana@x.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.Email != "ana@x.com" || user.Name != "Ana" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestAvailableSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("date"); got != "2026-09-01" {
			t.Fatalf("unexpected date %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"time": "2026-09-01T09:00:00", "is_available": true},
			{"time": "2026-09-01T09:30:00", "is_available": false}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	slots, err := c.AvailableSlots(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("AvailableSlots failed: %v", err)
	}
	if len(slots) != 2 || !slots[0].IsAvailable || slots[1].IsAvailable {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

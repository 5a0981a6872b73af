package webui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookdesk/internal/api"
	"github.com/md-rashed-zaman/bookdesk/internal/model"
	"github.com/md-rashed-zaman/bookdesk/internal/store"
)

// Refresher triggers a snapshot refresh after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Server is the localhost JSON surface the browser UI binds to. It holds no
// business logic beyond form validation: reads come from the store's derived
// views, commands are forwarded to the backend and surface its detail
// message on rejection.
type Server struct {
	api       *api.Client
	store     *store.Store
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(apiClient *api.Client, st *store.Store, refresher Refresher, logger *slog.Logger) *Server {
	return &Server{
		api:       apiClient,
		store:     st,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/calendar", s.calendar)
	mux.HandleFunc("/api/my-appointments", s.myAppointments)
	mux.HandleFunc("/api/slots", s.slots)
	mux.HandleFunc("/api/notifications", s.notifications)
	mux.HandleFunc("/api/book", s.book)
	mux.HandleFunc("/api/cancel", s.cancel)
	mux.HandleFunc("/api/login", s.login)
	mux.HandleFunc("/api/register", s.register)
	mux.HandleFunc("/api/forgot-password", s.forgotPassword)
}

type calendarResponse struct {
	UpcomingByDate map[string][]model.Appointment `json:"upcoming_by_date"`
	Dates          []string                       `json:"dates"`
	Past           []model.Appointment            `json:"past"`
	Cancelled      []model.Appointment            `json:"cancelled"`
}

func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v := s.store.Views(s.now())
	writeJSON(w, http.StatusOK, calendarResponse{
		UpcomingByDate: v.UpcomingByDate,
		Dates:          emptyIfNil(v.Dates),
		Past:           emptyIfNil(v.Past),
		Cancelled:      emptyIfNil(v.Cancelled),
	})
}

type myAppointmentsResponse struct {
	Upcoming []model.Appointment `json:"upcoming"`
	History  []model.Appointment `json:"history"`
}

func (s *Server) myAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	uv := s.store.ClientViews(s.now(), email)
	writeJSON(w, http.StatusOK, myAppointmentsResponse{
		Upcoming: emptyIfNil(uv.Upcoming),
		History:  emptyIfNil(uv.History),
	})
}

func (s *Server) slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slots, err := s.api.AvailableSlots(r.Context(), date)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(slots))
}

type notificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: emptyIfNil(s.store.Notifications()),
		UnreadCount:   s.store.UnreadCount(),
	})
}

func (s *Server) book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.AppointmentDate = strings.TrimSpace(req.AppointmentDate)
	req.AppointmentTime = strings.TrimSpace(req.AppointmentTime)

	// Validation happens before any backend round-trip.
	if req.ClientName == "" || req.ClientEmail == "" || req.AppointmentDate == "" || req.AppointmentTime == "" {
		http.Error(w, "client_name, client_email, appointment_date, and appointment_time are required", http.StatusBadRequest)
		return
	}
	if !strings.Contains(req.ClientEmail, "@") {
		http.Error(w, "client_email must be a valid email address", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", req.AppointmentDate); err != nil {
		http.Error(w, "appointment_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	created, err := s.api.CreateAppointment(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.triggerRefresh(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

type cancelRequest struct {
	ID                 int64  `json:"id"`
	CancellationReason string `json:"cancellation_reason"`
	ClientEmail        string `json:"client_email"`
	ClientName         string `json:"client_name"`
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ID <= 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	err := s.api.CancelAppointment(r.Context(), req.ID, api.CancelRequest{
		CancellationReason: strings.TrimSpace(req.CancellationReason),
		ClientEmail:        strings.TrimSpace(req.ClientEmail),
		ClientName:         strings.TrimSpace(req.ClientName),
	})
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.triggerRefresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuth(w, r, false)
	if !ok {
		return
	}
	user, err := s.api.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuth(w, r, true)
	if !ok {
		return
	}
	user, err := s.api.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	if err := s.api.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) decodeAuth(w http.ResponseWriter, r *http.Request, requireName bool) (authRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return authRequest{}, false
	}
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return authRequest{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return authRequest{}, false
	}
	if requireName && req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return authRequest{}, false
	}
	return req, true
}

// triggerRefresh keeps the snapshot in step after a successful mutation.
// Failures only log: the periodic refresh or the next push signal will
// catch the store up.
func (s *Server) triggerRefresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Warn("post-mutation refresh failed", "err", err)
	}
}

func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, map[string]string{"detail": apiErr.Error()})
		return
	}
	s.logger.Warn("backend request failed", "err", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "booking service unreachable"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

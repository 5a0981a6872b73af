package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookdesk/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client talks to the booking backend's REST API. All calls are bounded by
// the configured timeout; a non-2xx response decodes into *Error carrying
// the backend's detail message.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Error is a server-rejected request: non-2xx status plus the backend's
// detail message, surfaced verbatim to the user.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// BookingRequest is the POST /appointments payload.
type BookingRequest struct {
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ClientPhone     string `json:"client_phone,omitempty"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes,omitempty"`
}

// CancelRequest is the PUT /appointments/{id}/cancel payload.
type CancelRequest struct {
	CancellationReason string `json:"cancellation_reason"`
	ClientEmail        string `json:"client_email"`
	ClientName         string `json:"client_name"`
}

func (c *Client) AvailableSlots(ctx context.Context, date string) ([]model.Slot, error) {
	var slots []model.Slot
	q := url.Values{"date": {date}}
	if err := c.get(ctx, "/available-slots?"+q.Encode(), &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// Appointments fetches the full appointment list, or a single client's
// appointments when email is non-empty.
func (c *Client) Appointments(ctx context.Context, email string) ([]model.Appointment, error) {
	path := "/appointments"
	if email != "" {
		path += "?" + url.Values{"email": {email}}.Encode()
	}
	var appts []model.Appointment
	if err := c.get(ctx, path, &appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// CreateAppointment books a slot. Each call carries a fresh Idempotency-Key
// so a retried submit cannot double-book.
func (c *Client) CreateAppointment(ctx context.Context, req BookingRequest) (*model.Appointment, error) {
	var created model.Appointment
	headers := http.Header{"Idempotency-Key": {uuid.NewString()}}
	if err := c.do(ctx, http.MethodPost, "/appointments", req, headers, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id int64, req CancelRequest) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/appointments/%d/cancel", id), req, nil, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	return c.authRequest(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	return c.authRequest(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, nil, nil)
}

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var notifs []model.Notification
	if err := c.get(ctx, "/notifications", &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

func (c *Client) authRequest(ctx context.Context, path string, body map[string]string) (*model.User, error) {
	var resp struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
		apiErr.Detail = payload.Detail
	}
	return apiErr
}

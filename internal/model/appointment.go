package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID              int64     `json:"id"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	AppointmentTime time.Time `json:"appointment_time"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// DateKey is the calendar-date portion of the appointment time, used as the
// grouping key for the upcoming-by-date view. The value is formatted in the
// timestamp's own location so the key matches the date the server delivered,
// with no timezone conversion in between.
func (a Appointment) DateKey() string {
	return a.AppointmentTime.Format("2006-01-02")
}

func (a Appointment) Cancelled() bool {
	return a.Status == StatusCancelled
}

type appointmentJSON struct {
	ID              int64  `json:"id"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ClientPhone     string `json:"client_phone"`
	AppointmentTime string `json:"appointment_time"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
	CreatedAt       string `json:"created_at"`
}

func (a *Appointment) UnmarshalJSON(data []byte) error {
	var raw appointmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := ParseTime(raw.AppointmentTime)
	if err != nil {
		return fmt.Errorf("appointment_time: %w", err)
	}
	created := time.Time{}
	if raw.CreatedAt != "" {
		created, err = ParseTime(raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
	}
	*a = Appointment{
		ID:              raw.ID,
		ClientName:      raw.ClientName,
		ClientEmail:     raw.ClientEmail,
		ClientPhone:     raw.ClientPhone,
		AppointmentTime: t,
		Status:          raw.Status,
		Notes:           raw.Notes,
		CreatedAt:       created,
	}
	return nil
}

// ParseTime accepts RFC3339 as well as the zone-less form the backend emits
// for database timestamps ("2006-01-02T15:04:05", optionally with fractional
// seconds). Zone-less values are kept as delivered, in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

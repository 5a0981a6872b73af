package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		Message   string `json:"message"`
		IsRead    bool   `json:"is_read"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created := time.Time{}
	if raw.CreatedAt != "" {
		var err error
		created, err = ParseTime(raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
	}
	*n = Notification{
		ID:        raw.ID,
		Title:     raw.Title,
		Message:   raw.Message,
		IsRead:    raw.IsRead,
		CreatedAt: created,
	}
	return nil
}

type Slot struct {
	Time        time.Time `json:"time"`
	IsAvailable bool      `json:"is_available"`
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time        string `json:"time"`
		IsAvailable bool   `json:"is_available"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := ParseTime(raw.Time)
	if err != nil {
		return fmt.Errorf("time: %w", err)
	}
	*s = Slot{Time: t, IsAvailable: raw.IsAvailable}
	return nil
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

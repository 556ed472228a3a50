package models

import "time"

type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationInfo    NotificationKind = "info"
)

type Notification struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

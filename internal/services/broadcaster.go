package services

import "lootbox-backend/internal/models"

type Broadcaster interface {
	BroadcastSession(owner string, session models.OpeningSession)
	BroadcastNotification(n models.Notification)
}

package models

import "time"

// Notification types
const (
	NotificationAnnouncement = "announcement"
	NotificationEvent        = "event"
	NotificationPayment      = "payment"
	NotificationJob          = "job"
	NotificationSystem       = "system"
	NotificationMessage      = "message"
)

type Notification struct {
	ID        string            `bson:"_id,omitempty" json:"id"`
	Recipient string            `bson:"recipient" json:"recipient"`
	Sender    string            `bson:"sender,omitempty" json:"sender,omitempty"`
	Type      string            `bson:"type" json:"type"`
	Title     string            `bson:"title" json:"title"`
	Message   string            `bson:"message" json:"message"`
	Link      string            `bson:"link,omitempty" json:"link,omitempty"`
	Data      map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	IsRead    bool              `bson:"isRead" json:"isRead"`
	ReadAt    *time.Time        `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
}

package models

import "time"

// Announcement categories
const (
	CategoryGeneral     = "general"
	CategoryNews        = "news"
	CategoryAchievement = "achievement"
	CategoryJob         = "job"
	CategoryEvent       = "event"
	CategoryUrgent      = "urgent"
)

// Announcement priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Announcement statuses
const (
	AnnouncementDraft     = "draft"
	AnnouncementPublished = "published"
	AnnouncementArchived  = "archived"
)

type Announcement struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	Title       string     `bson:"title" json:"title"`
	Content     string     `bson:"content" json:"content"`
	Category    string     `bson:"category" json:"category"`
	Priority    string     `bson:"priority" json:"priority"`
	Author      string     `bson:"author" json:"author"`
	Status      string     `bson:"status" json:"status"`
	IsPinned    bool       `bson:"isPinned" json:"isPinned"`
	PublishedAt *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	ExpiresAt   *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Likes       []string   `bson:"likes" json:"likes"`
	Views       int64      `bson:"views" json:"views"`
	IsActive    bool       `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Visible reports whether the announcement is shown on the public feed at t.
func (a *Announcement) Visible(t time.Time) bool {
	if !a.IsActive || a.Status != AnnouncementPublished {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

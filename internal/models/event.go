package models

import "time"

// Event types
const (
	EventReunion    = "reunion"
	EventNetworking = "networking"
	EventWorkshop   = "workshop"
	EventWebinar    = "webinar"
	EventSocial     = "social"
	EventFundraiser = "fundraiser"
	EventOther      = "other"
)

// Event statuses
const (
	EventDraft     = "draft"
	EventPublished = "published"
	EventCancelled = "cancelled"
	EventCompleted = "completed"
)

// Attendee statuses
const (
	AttendeeRegistered = "registered"
	AttendeeAttended   = "attended"
	AttendeeCancelled  = "cancelled"
)

type Event struct {
	ID              string        `bson:"_id,omitempty" json:"id"`
	Title           string        `bson:"title" json:"title"`
	Description     string        `bson:"description,omitempty" json:"description,omitempty"`
	Type            string        `bson:"type" json:"type"`
	StartDate       time.Time     `bson:"startDate" json:"startDate"`
	EndDate         time.Time     `bson:"endDate" json:"endDate"`
	Location        EventLocation `bson:"location" json:"location"`
	Capacity        int           `bson:"capacity" json:"capacity"` // 0 = unlimited
	RegisteredCount int           `bson:"registeredCount" json:"registeredCount"`
	Attendees       []Attendee    `bson:"attendees" json:"attendees"`
	Organizer       string        `bson:"organizer" json:"organizer"`
	Status          string        `bson:"status" json:"status"`
	Tags            []string      `bson:"tags,omitempty" json:"tags,omitempty"`
	ImageURL        string        `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	IsActive        bool          `bson:"isActive" json:"isActive"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type EventLocation struct {
	Venue      string `bson:"venue,omitempty" json:"venue,omitempty"`
	Address    string `bson:"address,omitempty" json:"address,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
	IsVirtual  bool   `bson:"isVirtual" json:"isVirtual"`
	MeetingURL string `bson:"meetingUrl,omitempty" json:"meetingUrl,omitempty"`
}

type Attendee struct {
	UserID       string    `bson:"userId" json:"userId"`
	Status       string    `bson:"status" json:"status"`
	RegisteredAt time.Time `bson:"registeredAt" json:"registeredAt"`
}

// Attendee returns the attendee entry for userID, if any.
func (e *Event) Attendee(userID string) (Attendee, bool) {
	for _, a := range e.Attendees {
		if a.UserID == userID {
			return a, true
		}
	}
	return Attendee{}, false
}

// IsFull reports whether a capacity-limited event has no seats left.
func (e *Event) IsFull() bool {
	return e.Capacity > 0 && e.RegisteredCount >= e.Capacity
}

var EventTypes = []string{EventReunion, EventNetworking, EventWorkshop, EventWebinar, EventSocial, EventFundraiser, EventOther}

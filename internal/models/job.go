package models

import "time"

// Job types
const (
	JobFullTime   = "full-time"
	JobPartTime   = "part-time"
	JobContract   = "contract"
	JobInternship = "internship"
	JobRemote     = "remote"
)

// Job statuses
const (
	JobOpen   = "open"
	JobClosed = "closed"
	JobFilled = "filled"
)

// Application statuses
const (
	ApplicationSubmitted = "submitted"
	ApplicationReviewed  = "reviewed"
	ApplicationAccepted  = "accepted"
	ApplicationRejected  = "rejected"
)

type Job struct {
	ID              string        `bson:"_id,omitempty" json:"id"`
	Title           string        `bson:"title" json:"title"`
	Company         string        `bson:"company" json:"company"`
	Description     string        `bson:"description" json:"description"`
	Requirements    []string      `bson:"requirements,omitempty" json:"requirements,omitempty"`
	Location        string        `bson:"location,omitempty" json:"location,omitempty"`
	Type            string        `bson:"type" json:"type"`
	ExperienceLevel string        `bson:"experienceLevel,omitempty" json:"experienceLevel,omitempty"`
	Salary          *Salary       `bson:"salary,omitempty" json:"salary,omitempty"`
	ApplicationURL  string        `bson:"applicationUrl,omitempty" json:"applicationUrl,omitempty"`
	ContactEmail    string        `bson:"contactEmail,omitempty" json:"contactEmail,omitempty"`
	PostedBy        string        `bson:"postedBy" json:"postedBy"`
	Status          string        `bson:"status" json:"status"`
	Deadline        *time.Time    `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Applications    []Application `bson:"applications" json:"applications,omitempty"`
	IsActive        bool          `bson:"isActive" json:"isActive"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type Salary struct {
	Min      int64  `bson:"min,omitempty" json:"min,omitempty"`
	Max      int64  `bson:"max,omitempty" json:"max,omitempty"`
	Currency string `bson:"currency,omitempty" json:"currency,omitempty"`
}

type Application struct {
	UserID      string    `bson:"userId" json:"userId"`
	CoverLetter string    `bson:"coverLetter,omitempty" json:"coverLetter,omitempty"`
	ResumeURL   string    `bson:"resumeUrl,omitempty" json:"resumeUrl,omitempty"`
	Status      string    `bson:"status" json:"status"`
	AppliedAt   time.Time `bson:"appliedAt" json:"appliedAt"`
}

// AcceptingApplications reports whether the job can be applied to at t.
func (j *Job) AcceptingApplications(t time.Time) bool {
	if !j.IsActive || j.Status != JobOpen {
		return false
	}
	return j.Deadline == nil || j.Deadline.After(t)
}

// HasApplied reports whether userID already applied.
func (j *Job) HasApplied(userID string) bool {
	for _, a := range j.Applications {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

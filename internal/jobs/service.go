package jobs

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

// Experience levels
const (
	LevelEntry     = "entry"
	LevelMid       = "mid"
	LevelSenior    = "senior"
	LevelExecutive = "executive"
)

var (
	validTypes = map[string]bool{
		models.JobFullTime: true, models.JobPartTime: true, models.JobContract: true,
		models.JobInternship: true, models.JobRemote: true,
	}
	validLevels              = map[string]bool{"": true, LevelEntry: true, LevelMid: true, LevelSenior: true, LevelExecutive: true}
	validStatuses            = map[string]bool{models.JobOpen: true, models.JobClosed: true, models.JobFilled: true}
	validApplicationStatuses = map[string]bool{
		models.ApplicationSubmitted: true, models.ApplicationReviewed: true,
		models.ApplicationAccepted: true, models.ApplicationRejected: true,
	}
)

type Notifier interface {
	NotifyQuietly(ctx context.Context, n models.Notification)
}

// Input carries the editable fields of a job. Nil pointers are left unchanged.
type Input struct {
	Title           *string
	Company         *string
	Description     *string
	Requirements    []string
	Location        *string
	Type            *string
	ExperienceLevel *string
	Salary          *models.Salary
	ApplicationURL  *string
	ContactEmail    *string
	Status          *string
	Deadline        *time.Time
}

type ApplyInput struct {
	CoverLetter string
	ResumeURL   string
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

func NewService(r Repository, n Notifier) *Service {
	return &Service{repo: r, notifier: n, now: models.Now}
}

func (s *Service) Create(ctx context.Context, in Input, postedBy string) (*models.Job, error) {
	now := s.now()
	j := &models.Job{
		ID:           models.NewID(),
		Type:         models.JobFullTime,
		PostedBy:     postedBy,
		Status:       models.JobOpen,
		Applications: []models.Application{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	apply(j, in)
	if err := validate(j); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input, actor models.Actor) (*models.Job, error) {
	j, err := s.manageable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	apply(j, in)
	if err := validate(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Close marks the job closed or filled.
func (s *Service) Close(ctx context.Context, id, status string, actor models.Actor) (*models.Job, error) {
	if status == "" {
		status = models.JobClosed
	}
	if status == models.JobOpen {
		return nil, models.NewValidationError("invalid status", models.FieldError{Field: "status", Message: "status must be closed or filled"})
	}
	return s.Update(ctx, id, Input{Status: &status}, actor)
}

func (s *Service) Delete(ctx context.Context, id string, actor models.Actor) error {
	j, err := s.manageable(ctx, id, actor)
	if err != nil {
		return err
	}
	j.IsActive = false
	j.UpdatedAt = s.now()
	return s.repo.Update(ctx, j)
}

func (s *Service) manageable(ctx context.Context, id string, actor models.Actor) (*models.Job, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(j.PostedBy) {
		return nil, fmt.Errorf("only the poster or an admin may manage this job: %w", models.ErrForbidden)
	}
	return j, nil
}

func apply(j *models.Job, in Input) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&j.Title, in.Title)
	set(&j.Company, in.Company)
	set(&j.Location, in.Location)
	set(&j.Type, in.Type)
	set(&j.ExperienceLevel, in.ExperienceLevel)
	set(&j.ApplicationURL, in.ApplicationURL)
	set(&j.ContactEmail, in.ContactEmail)
	set(&j.Status, in.Status)
	if in.Description != nil {
		j.Description = *in.Description
	}
	if in.Requirements != nil {
		j.Requirements = in.Requirements
	}
	if in.Salary != nil {
		sal := *in.Salary
		j.Salary = &sal
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		j.Deadline = &d
	}
}

func validate(j *models.Job) error {
	var fields []models.FieldError
	add := func(field, msg string) { fields = append(fields, models.FieldError{Field: field, Message: msg}) }
	if j.Title == "" {
		add("title", "title is required")
	}
	if j.Company == "" {
		add("company", "company is required")
	}
	if strings.TrimSpace(j.Description) == "" {
		add("description", "description is required")
	}
	if !validTypes[j.Type] {
		add("type", "unknown job type")
	}
	if !validLevels[j.ExperienceLevel] {
		add("experienceLevel", "experienceLevel must be entry, mid, senior or executive")
	}
	if !validStatuses[j.Status] {
		add("status", "status must be open, closed or filled")
	}
	if sal := j.Salary; sal != nil {
		if sal.Min < 0 || sal.Max < 0 {
			add("salary", "salary bounds must not be negative")
		} else if sal.Min > 0 && sal.Max > 0 && sal.Max < sal.Min {
			add("salary.max", "salary.max must be greater than or equal to salary.min")
		}
	}
	if j.ContactEmail != "" {
		if _, err := mail.ParseAddress(j.ContactEmail); err != nil {
			add("contactEmail", "contactEmail must be a valid email address")
		}
	}
	if len(fields) > 0 {
		return models.NewValidationError("invalid job", fields...)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return j, nil
}

// List defaults to open jobs; Status "all" lists every status.
func (s *Service) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Job], error) {
	switch f.Status {
	case "":
		f.Status = models.JobOpen
	case "all":
		f.Status = ""
	}
	return s.repo.List(ctx, f, p)
}

// Apply records one application per user while the job accepts them.
func (s *Service) Apply(ctx context.Context, id, userID string, in ApplyInput) (*models.Job, error) {
	posted, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if posted.PostedBy == userID {
		return nil, fmt.Errorf("cannot apply to your own job: %w", models.ErrConflict)
	}
	now := s.now()
	app := models.Application{
		UserID:      userID,
		CoverLetter: in.CoverLetter,
		ResumeURL:   in.ResumeURL,
		Status:      models.ApplicationSubmitted,
		AppliedAt:   now,
	}
	ok, err := s.repo.AddApplication(ctx, id, app, now)
	if err != nil {
		return nil, err
	}
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		switch {
		case !j.IsActive:
			return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		case j.HasApplied(userID):
			return nil, fmt.Errorf("you have already applied to this job: %w", models.ErrConflict)
		}
		return nil, fmt.Errorf("job is not accepting applications: %w", models.ErrConflict)
	}
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: j.PostedBy,
		Sender:    userID,
		Type:      models.NotificationJob,
		Title:     "New application",
		Message:   fmt.Sprintf("Someone applied to %s at %s.", j.Title, j.Company),
		Link:      "/jobs/" + j.ID + "/applications",
		Data:      map[string]string{"jobId": j.ID, "applicantId": userID},
	})
	return j, nil
}

func (s *Service) Applications(ctx context.Context, id string, actor models.Actor) ([]models.Application, error) {
	j, err := s.manageable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return j.Applications, nil
}

func (s *Service) SetApplicationStatus(ctx context.Context, id, applicant, status string, actor models.Actor) (*models.Job, error) {
	if !validApplicationStatuses[status] {
		return nil, models.NewValidationError("invalid status",
			models.FieldError{Field: "status", Message: "status must be submitted, reviewed, accepted or rejected"})
	}
	j, err := s.manageable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.SetApplicationStatus(ctx, id, applicant, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("application by %s: %w", applicant, models.ErrNotFound)
	}
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: applicant,
		Type:      models.NotificationJob,
		Title:     "Application " + status,
		Message:   fmt.Sprintf("Your application to %s at %s is now %s.", j.Title, j.Company, status),
		Link:      "/jobs/" + j.ID,
		Data:      map[string]string{"jobId": j.ID, "status": status},
	})
	return s.Get(ctx, id)
}

func (s *Service) CountOpen(ctx context.Context) (int64, error) {
	return s.repo.CountOpen(ctx)
}

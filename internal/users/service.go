package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
)

var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", models.ErrUnauthorized)

// RegisterInput carries the fields accepted when an account is created.
type RegisterInput struct {
	FirstName      string
	LastName       string
	Email          string
	Password       string
	GraduationYear int
	Degree         string
	Major          string
	StudentID      string
	Phone          string
}

// ProfileUpdate is a partial update; nil fields are left unchanged. Role and
// IsActive may only be set by an admin.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	GraduationYear *int
	Degree         *string
	Major          *string
	StudentID      *string
	Phone          *string
	Profile        *models.Profile
	Location       *models.Location
	Role           *string
	IsActive       *bool
	IsVerified     *bool
}

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
	cost int
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register creates an alumni account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.Create(ctx, in, models.RoleAlumni)
}

// Create creates an account with the given role.
func (s *Service) Create(ctx context.Context, in RegisterInput, role string) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	var fields []models.FieldError
	if strings.TrimSpace(in.FirstName) == "" {
		fields = append(fields, models.FieldError{Field: "firstName", Message: "firstName is required"})
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields = append(fields, models.FieldError{Field: "lastName", Message: "lastName is required"})
	}
	if in.Email == "" {
		fields = append(fields, models.FieldError{Field: "email", Message: "email is required"})
	}
	if fe := checkPassword("password", in.Password); fe != nil {
		fields = append(fields, *fe)
	}
	if !models.ValidRole(role) {
		fields = append(fields, models.FieldError{Field: "role", Message: "unknown role"})
	}
	if len(fields) > 0 {
		return nil, models.NewValidationError("invalid registration", fields...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := models.Now()
	u := &models.User{
		ID:             models.NewID(),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           role,
		GraduationYear: in.GraduationYear,
		Degree:         in.Degree,
		Major:          in.Major,
		StudentID:      in.StudentID,
		Phone:          in.Phone,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("email %s is already registered: %w", in.Email, models.ErrConflict)
		}
		return nil, err
	}
	return u, nil
}

// Authenticate checks email and password and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if len(u.PasswordHash) == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, fmt.Errorf("account is deactivated: %w", models.ErrForbidden)
	}
	now := models.Now()
	if err := s.repo.SetLastLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LastLogin = &now
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(u.PasswordHash) == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(current)) != nil {
		return fmt.Errorf("current password is incorrect: %w", models.ErrUnauthorized)
	}
	if fe := checkPassword("newPassword", next); fe != nil {
		return models.NewValidationError("invalid password", *fe)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = models.Now()
	return s.repo.Update(ctx, u)
}

func checkPassword(field, pw string) *models.FieldError {
	switch {
	case len(pw) < MinPasswordLength:
		return &models.FieldError{Field: field, Message: fmt.Sprintf("%s must be at least %d characters", field, MinPasswordLength)}
	case len(pw) > maxPasswordLength:
		return &models.FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, maxPasswordLength)}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	return u, nil
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// Directory lists users. Inactive accounts are only visible to admins.
func (s *Service) Directory(ctx context.Context, f Filter, p models.Pagination, viewerIsAdmin bool) (models.Page[models.User], error) {
	if !viewerIsAdmin {
		f.IncludeInactive = false
	}
	switch f.SortBy {
	case "", "lastName", "graduationYear", "createdAt":
	default:
		return models.Page[models.User]{}, models.NewValidationError("invalid sort",
			models.FieldError{Field: "sortBy", Message: "sortBy must be one of lastName, graduationYear, createdAt"})
	}
	return s.repo.List(ctx, f, p)
}

// Update applies a partial profile update on behalf of a caller.
func (s *Service) Update(ctx context.Context, id string, in ProfileUpdate, asAdmin bool) (*models.User, error) {
	if !asAdmin && (in.Role != nil || in.IsActive != nil || in.IsVerified != nil) {
		return nil, fmt.Errorf("only admins may change role or account status: %w", models.ErrForbidden)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if (in.FirstName != nil && strings.TrimSpace(*in.FirstName) == "") || (in.LastName != nil && strings.TrimSpace(*in.LastName) == "") {
		return nil, models.NewValidationError("name cannot be empty",
			models.FieldError{Field: "firstName", Message: "firstName and lastName cannot be blank"})
	}
	setString(&u.FirstName, in.FirstName)
	setString(&u.LastName, in.LastName)
	setString(&u.Degree, in.Degree)
	setString(&u.Major, in.Major)
	setString(&u.StudentID, in.StudentID)
	setString(&u.Phone, in.Phone)
	if in.GraduationYear != nil {
		u.GraduationYear = *in.GraduationYear
	}
	if in.Profile != nil {
		avatar := u.Profile.Avatar
		u.Profile = *in.Profile
		if u.Profile.Avatar == "" {
			u.Profile.Avatar = avatar
		}
	}
	if in.Location != nil {
		u.Location = *in.Location
	}
	if in.Role != nil {
		if !models.ValidRole(*in.Role) {
			return nil, models.NewValidationError("invalid role", models.FieldError{Field: "role", Message: "unknown role"})
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.IsVerified != nil {
		u.IsVerified = *in.IsVerified
	}
	u.UpdatedAt = models.Now()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// SetActive soft-deletes (false) or reactivates (true) an account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	return s.Update(ctx, id, ProfileUpdate{IsActive: &active}, true)
}

func (s *Service) SetRole(ctx context.Context, id, role string) (*models.User, error) {
	return s.Update(ctx, id, ProfileUpdate{Role: &role}, true)
}

// SetAvatar records the URL of an uploaded avatar.
func (s *Service) SetAvatar(ctx context.Context, id, url string) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Profile.Avatar = url
	u.UpdatedAt = models.Now()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// ActiveUserIDs lists every active account; used as the broadcast audience.
func (s *Service) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return s.repo.ActiveIDs(ctx)
}

// UpsertFromClaims creates or updates a federated user from OIDC claims.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return nil, fmt.Errorf("claims without subject: %w", models.ErrUnauthorized)
	}
	if NormalizeEmail(email) == "" {
		return nil, fmt.Errorf("claims without email: %w", models.ErrUnauthorized)
	}
	first, _ := claims["given_name"].(string)
	last, _ := claims["family_name"].(string)
	if first == "" && last == "" {
		name, _ := claims["name"].(string)
		first, last = splitName(name)
	}
	u := &models.User{
		Sub:       sub,
		Email:     NormalizeEmail(email),
		FirstName: first,
		LastName:  last,
	}
	out, err := s.repo.UpsertBySub(ctx, u)
	if err != nil {
		return nil, err
	}
	if !out.IsActive {
		return nil, fmt.Errorf("account is deactivated: %w", models.ErrForbidden)
	}
	return out, nil
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

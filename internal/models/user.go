package models

import "time"

// Roles
const (
	RoleAlumni    = "alumni"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Roles lists every valid role.
var Roles = []string{RoleAlumni, RoleModerator, RoleAdmin}

// User is an alumni network member.
type User struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	Sub            string     `bson:"sub,omitempty" json:"-"` // OIDC subject for federated accounts
	FirstName      string     `bson:"firstName" json:"firstName"`
	LastName       string     `bson:"lastName" json:"lastName"`
	Email          string     `bson:"email" json:"email"`
	PasswordHash   []byte     `bson:"passwordHash,omitempty" json:"-"`
	Role           string     `bson:"role" json:"role"`
	GraduationYear int        `bson:"graduationYear,omitempty" json:"graduationYear,omitempty"`
	Degree         string     `bson:"degree,omitempty" json:"degree,omitempty"`
	Major          string     `bson:"major,omitempty" json:"major,omitempty"`
	StudentID      string     `bson:"studentId,omitempty" json:"studentId,omitempty"`
	Phone          string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Profile        Profile    `bson:"profile" json:"profile"`
	Location       Location   `bson:"location" json:"location"`
	IsActive       bool       `bson:"isActive" json:"isActive"`
	IsVerified     bool       `bson:"isVerified" json:"isVerified"`
	LastLogin      *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Profile holds the professional details shown in the alumni directory.
type Profile struct {
	Bio      string   `bson:"bio,omitempty" json:"bio,omitempty"`
	Company  string   `bson:"company,omitempty" json:"company,omitempty"`
	JobTitle string   `bson:"jobTitle,omitempty" json:"jobTitle,omitempty"`
	Industry string   `bson:"industry,omitempty" json:"industry,omitempty"`
	Skills   []string `bson:"skills,omitempty" json:"skills,omitempty"`
	LinkedIn string   `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
	Website  string   `bson:"website,omitempty" json:"website,omitempty"`
	Avatar   string   `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

type Location struct {
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsStaff reports whether the user may manage content (admin or moderator).
func (u *User) IsStaff() bool { return u.Role == RoleAdmin || u.Role == RoleModerator }

// ValidRole reports whether r is one of Roles.
func ValidRole(r string) bool {
	for _, role := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

package users

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jrsteele09/militex-client/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// UserProfile mirrors the /users/me/ payload. A cached copy is replaced wholesale on every fetch.
type UserProfile struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	IsMilitary  bool    `json:"is_military"`
	IsVerified  bool    `json:"is_verified"`
}

func (u *UserProfile) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u *UserProfile) Phone() string {
	return utils.Value(u.PhoneNumber)
}

// Credentials is the body of POST /api/token/.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the body of POST /api/users/.
type Registration struct {
	Username    string  `json:"username" validate:"required,min=3,max=150"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,strongpassword"`
	Password2   string  `json:"password2" validate:"required,eqfield=Password"`
	FirstName   string  `json:"first_name" validate:"max=150"`
	LastName    string  `json:"last_name" validate:"max=150"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	IsMilitary  bool    `json:"is_military"`
}

// ProfileUpdate is a partial update for PATCH /users/me/. Nil fields are left untouched.
type ProfileUpdate struct {
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	IsMilitary  *bool   `json:"is_military,omitempty"`
}

// Apply copies the set fields of p onto profile.
func (p ProfileUpdate) Apply(profile *UserProfile) {
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.FirstName != nil {
		profile.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		profile.LastName = *p.LastName
	}
	if p.PhoneNumber != nil {
		profile.PhoneNumber = utils.Ptr(*p.PhoneNumber)
	}
	if p.IsMilitary != nil {
		profile.IsMilitary = *p.IsMilitary
	}
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

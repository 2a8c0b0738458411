package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum length accepted when an admin sets a password
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts
	MaxPasswordBytes = 72
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// PasswordValidationError represents a specific password validation failure
type PasswordValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordValidator handles password validation and hashing
type PasswordValidator struct {
	cost int
	// dummyHash is compared against when the username is unknown so that
	// unknown and known accounts take the same time to reject
	dummyHash []byte
}

// NewPasswordValidator creates a validator hashing with BcryptCost
func NewPasswordValidator() *PasswordValidator {
	return NewPasswordValidatorWithCost(BcryptCost)
}

// NewPasswordValidatorWithCost creates a validator with a custom bcrypt
// cost. Tests use bcrypt.MinCost.
func NewPasswordValidatorWithCost(cost int) *PasswordValidator {
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), cost)
	if err != nil {
		dummy = nil
	}
	return &PasswordValidator{cost: cost, dummyHash: dummy}
}

// ValidatePassword checks the complexity rules for a new password
func (v *PasswordValidator) ValidatePassword(password string) []PasswordValidationError {
	var errs []PasswordValidationError

	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, PasswordValidationError{
			Field:   "password",
			Message: "Password must be at least 8 characters long",
		})
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, PasswordValidationError{
			Field:   "password",
			Message: "Password must be at most 72 bytes long",
		})
	}

	var hasUpper, hasLower, hasNumber bool
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

	if !hasUpper || !hasLower {
		errs = append(errs, PasswordValidationError{
			Field:   "password",
			Message: "Password must mix uppercase and lowercase letters",
		})
	}
	if !hasNumber {
		errs = append(errs, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one number",
		})
	}

	return errs
}

// HashPassword creates a bcrypt hash of the password
func (v *PasswordValidator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its bcrypt hash
// Returns nil if they match, error otherwise
func (v *PasswordValidator) VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// burn spends one comparison's worth of time without a real hash
func (v *PasswordValidator) burn(password string) {
	if v.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
	}
}

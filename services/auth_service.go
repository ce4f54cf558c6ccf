package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ffp-admin/apperrors"
	"ffp-admin/models"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 100

	msgEmailTaken         = "An account with this email already exists. Please use a different email or try signing in."
	msgInvalidCredentials = "invalid email or password"
)

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EmailAvailability answers the sign-up form's live check.
type EmailAvailability struct {
	Email     string `json:"email"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type SignInResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AuthService registers users and signs them in with a session token.
type AuthService struct {
	db         *gorm.DB
	sessions   *SessionManager
	log        *zap.Logger
	bcryptCost int
}

func NewAuthService(db *gorm.DB, sessions *SessionManager, bcryptCost int, log *zap.Logger) *AuthService {
	return &AuthService{db: db, sessions: sessions, bcryptCost: bcryptCost, log: log.Named("auth")}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct("validation failed", in); err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	taken, err := s.emailTaken(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict(msgEmailTaken)
	}

	user, err := s.createUser(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict(msgEmailTaken)
		}
		// bcrypt only reads 72 bytes
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.Validation("validation failed",
				apperrors.Field("password", "must be at most 72 bytes"))
		}
		return nil, apperrors.Internal(err, "failed to create account")
	}
	s.log.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

func (s *AuthService) EmailAvailable(ctx context.Context, email string) (*EmailAvailability, error) {
	raw := strings.TrimSpace(email)
	if raw == "" {
		return nil, apperrors.Validation("Email parameter is required", apperrors.Field("email", "is required"))
	}
	if err := validate.Var(raw, "email"); err != nil {
		return nil, apperrors.Validation("Invalid email format", apperrors.Field("email", "must be a valid email address"))
	}

	taken, err := s.emailTaken(ctx, normalizeEmail(raw))
	if err != nil {
		return nil, err
	}
	out := &EmailAvailability{Email: raw, Available: !taken, Message: "Email is available"}
	if taken {
		out.Message = "Email is already registered"
	}
	return out, nil
}

// SignIn checks credentials and issues a session. Unknown emails and wrong
// passwords produce the same error.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (*SignInResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct("validation failed", in); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", in.Email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Info("sign-in rejected", zap.String("reason", "unknown email"))
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, apperrors.Internal(err, "failed to sign in")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		s.log.Info("sign-in rejected", zap.String("reason", "bad password"), zap.String("user_id", user.ID))
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	session, err := s.sessions.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to issue session")
	}
	s.log.Info("user signed in", zap.String("user_id", user.ID))
	return &SignInResult{Token: session.Token, ExpiresAt: session.ExpiresAt, User: &user}, nil
}

// EnsureUser returns the user with email, creating it with password when
// absent. Used by the seed command.
func (s *AuthService) EnsureUser(ctx context.Context, email, password string) (*models.User, bool, error) {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.Internal(err, "failed to load user")
	}
	created, err := s.createUser(ctx, email, password)
	if err != nil {
		return nil, false, apperrors.Internal(err, "failed to create user")
	}
	return created, true, nil
}

func (s *AuthService) createUser(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, apperrors.Internal(err, "failed to check email")
	}
	return count > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPassword enforces length plus upper, lower and digit classes.
func checkPassword(password string) error {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	var msgs []string
	if n := len([]rune(password)); n < minPasswordLength || n > maxPasswordLength {
		msgs = append(msgs, "must be between 8 and 100 characters")
	}
	if !upper {
		msgs = append(msgs, "must contain an uppercase letter")
	}
	if !lower {
		msgs = append(msgs, "must contain a lowercase letter")
	}
	if !digit {
		msgs = append(msgs, "must contain a digit")
	}
	if len(msgs) == 0 {
		return nil
	}
	return apperrors.Validation("validation failed", apperrors.Field("password", strings.Join(msgs, "; ")))
}

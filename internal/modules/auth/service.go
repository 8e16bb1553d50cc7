// README: Auth service: OTP-gated signup, password or OTP login, and profile lookup.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ridebook/internal/modules/user"
	"ridebook/internal/types"
)

var (
	ErrBadRequest    = errors.New("invalid auth request")
	ErrEmailTaken    = errors.New("email exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidOTP    = errors.New("invalid otp")
	ErrWrongPassword = errors.New("wrong password")
)

type Users interface {
	Create(ctx context.Context, u *user.User) error
	Get(ctx context.Context, id types.ID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// OTPVerifier issues and checks email codes.
type OTPVerifier interface {
	Issue(ctx context.Context, address string) error
	Verify(ctx context.Context, address, code string) (bool, error)
}

type TokenIssuer interface {
	Issue(userID types.ID, role types.Role) (string, error)
}

type Service struct {
	users  Users
	otp    OTPVerifier
	tokens TokenIssuer
	log    *zap.Logger
	now    func() time.Time
	cost   int
}

func NewService(users Users, otp OTPVerifier, tokens TokenIssuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:  users,
		otp:    otp,
		tokens: tokens,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
	}
}

// StartSignup sends a signup OTP to an email that is not registered yet.
func (s *Service) StartSignup(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !errors.Is(err, user.ErrNotFound):
		return err
	}
	return s.otp.Issue(ctx, email)
}

// CompleteSignup checks the OTP and creates a verified user.
func (s *Service) CompleteSignup(ctx context.Context, cmd SignupCommand) (*Session, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Name) == "" || len(cmd.Password) < minPasswordLength {
		return nil, ErrBadRequest
	}
	if cmd.Role != types.RoleClient && cmd.Role != types.RoleDriver {
		return nil, ErrBadRequest
	}
	ok, err := s.otp.Verify(ctx, email, cmd.OTP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOTP
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &user.User{
		ID:           types.ID(uuid.NewString()),
		Name:         strings.TrimSpace(cmd.Name),
		Email:        email,
		Mobile:       strings.TrimSpace(cmd.Mobile),
		PasswordHash: string(hash),
		Role:         cmd.Role,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", string(u.ID)), zap.String("role", string(u.Role)))
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, cmd LoginCommand) (*Session, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if cmd.OTP != "" {
		ok, err := s.otp.Verify(ctx, email, cmd.OTP)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidOTP
		}
	} else if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(cmd.Password)) != nil {
		return nil, ErrWrongPassword
	}
	return s.session(u)
}

// RequestLoginOTP emails a login code to a registered user.
func (s *Service) RequestLoginOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.otp.Issue(ctx, email)
}

func (s *Service) Me(ctx context.Context, id types.ID) (*Profile, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return profileOf(u), nil
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, Role: u.Role}, nil
}

var validate = validator.New()

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrBadRequest
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", ErrBadRequest
	}
	return email, nil
}

// README: OTP verifier issues email codes with a TTL and validates them with lazy expiry.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrBadRequest = errors.New("address required")
	ErrDispatch   = errors.New("otp dispatch failed")
)

// Mailer is the email collaborator.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Options struct {
	TTL time.Duration
	// ConsumeOnVerify deletes the entry after a successful Verify.
	ConsumeOnVerify bool
}

type Service struct {
	store  Store
	mailer Mailer
	opts   Options
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, mailer Mailer, opts Options, log *zap.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, mailer: mailer, opts: opts, log: log, now: time.Now}
}

// Issue generates a code for address, stores it and emails it. A mail failure is returned.
func (s *Service) Issue(ctx context.Context, address string) error {
	address = NormalizeAddress(address)
	if address == "" {
		return ErrBadRequest
	}
	code, err := GenerateNumericCode(CodeLength)
	if err != nil {
		return err
	}
	e := Entry{Address: address, Code: code, ExpiresAt: s.now().Add(s.opts.TTL)}
	if err := s.store.Save(ctx, e); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	if err := s.mailer.Send(ctx, address, "Verify your email", renderBody(code, s.opts.TTL)); err != nil {
		s.log.Error("otp mail failed", zap.String("address", address), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	return nil
}

// Verify reports whether code matches the live entry for address.
func (s *Service) Verify(ctx context.Context, address, code string) (bool, error) {
	address = NormalizeAddress(address)
	if address == "" || code == "" {
		return false, nil
	}
	e, ok, err := s.store.Get(ctx, address)
	if err != nil {
		return false, err
	}
	if !ok || e.Expired(s.now()) || e.Code != code {
		return false, nil
	}
	if s.opts.ConsumeOnVerify {
		if err := s.store.Delete(ctx, address); err != nil {
			return false, err
		}
	}
	return true, nil
}

func renderBody(code string, ttl time.Duration) string {
	return fmt.Sprintf(`<h2>Email Verification</h2>
<p>Your OTP is:</p>
<h1>%s</h1>
<p>Valid for %d minutes</p>`, code, int(ttl.Minutes()))
}

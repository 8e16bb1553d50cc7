package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"ridebook/internal/modules/user"
	"ridebook/internal/types"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[types.ID]*user.User
}

func newMemUsers() *memUsers { return &memUsers{byID: make(map[types.ID]*user.User)} }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) Get(_ context.Context, id types.ID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

// fakeOTP accepts "1234" for any address that was issued a code.
type fakeOTP struct {
	issued map[string]int
}

func (f *fakeOTP) Issue(_ context.Context, address string) error {
	if f.issued == nil {
		f.issued = make(map[string]int)
	}
	f.issued[address]++
	return nil
}

func (f *fakeOTP) Verify(_ context.Context, address, code string) (bool, error) {
	return f.issued[address] > 0 && code == "1234", nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(id types.ID, role types.Role) (string, error) {
	return "tok:" + string(id) + ":" + string(role), nil
}

func newTestService() (*Service, *memUsers, *fakeOTP) {
	users := newMemUsers()
	otp := &fakeOTP{}
	svc := NewService(users, otp, fakeTokens{}, nil)
	svc.cost = bcrypt.MinCost
	return svc, users, otp
}

func signUp(t *testing.T, svc *Service, email string, role types.Role) *Session {
	t.Helper()
	ctx := context.Background()
	if err := svc.StartSignup(ctx, email); err != nil {
		t.Fatalf("start signup: %v", err)
	}
	sess, err := svc.CompleteSignup(ctx, SignupCommand{
		Name: "Asha", Email: email, Mobile: "9999999999", Password: "secret1", Role: role, OTP: "1234",
	})
	if err != nil {
		t.Fatalf("complete signup: %v", err)
	}
	return sess
}

func TestSignup_CreatesVerifiedUser(t *testing.T) {
	svc, users, otp := newTestService()
	sess := signUp(t, svc, " Asha@Example.com ", types.RoleDriver)

	if sess.Role != types.RoleDriver || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if otp.issued["asha@example.com"] != 1 {
		t.Fatalf("otp issued = %v", otp.issued)
	}
	u, err := users.GetByEmail(context.Background(), "asha@example.com")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if !u.IsVerified || u.PasswordHash == "secret1" {
		t.Fatalf("user not verified or password stored in clear: %+v", u)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) != nil {
		t.Fatal("stored hash does not match password")
	}
}

func TestSignup_Rejections(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	signUp(t, svc, "taken@example.com", types.RoleClient)

	if err := svc.StartSignup(ctx, "taken@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("existing email: %v", err)
	}
	if err := svc.StartSignup(ctx, "not-an-email"); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("bad email: %v", err)
	}

	_ = svc.StartSignup(ctx, "new@example.com")
	base := SignupCommand{Name: "N", Email: "new@example.com", Password: "secret1", Role: types.RoleClient, OTP: "1234"}
	tests := []struct {
		name string
		mod  func(*SignupCommand)
		want error
	}{
		{"wrong otp", func(c *SignupCommand) { c.OTP = "0000" }, ErrInvalidOTP},
		{"short password", func(c *SignupCommand) { c.Password = "abc" }, ErrBadRequest},
		{"unknown role", func(c *SignupCommand) { c.Role = "admin" }, ErrBadRequest},
		{"no name", func(c *SignupCommand) { c.Name = " " }, ErrBadRequest},
		{"no otp issued", func(c *SignupCommand) { c.Email = "other@example.com" }, ErrInvalidOTP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := base
			tt.mod(&cmd)
			if _, err := svc.CompleteSignup(ctx, cmd); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, otp := newTestService()
	ctx := context.Background()
	signUp(t, svc, "rider@example.com", types.RoleClient)

	sess, err := svc.Login(ctx, LoginCommand{Email: "rider@example.com", Password: "secret1"})
	if err != nil || sess.Role != types.RoleClient {
		t.Fatalf("password login: %+v, %v", sess, err)
	}
	if _, err := svc.Login(ctx, LoginCommand{Email: "rider@example.com", Password: "nope"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := svc.Login(ctx, LoginCommand{Email: "ghost@example.com", Password: "secret1"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}

	if err := svc.RequestLoginOTP(ctx, "rider@example.com"); err != nil {
		t.Fatalf("login otp: %v", err)
	}
	if otp.issued["rider@example.com"] != 2 {
		t.Fatalf("otp issued = %d", otp.issued["rider@example.com"])
	}
	if _, err := svc.Login(ctx, LoginCommand{Email: "rider@example.com", OTP: "1234"}); err != nil {
		t.Fatalf("otp login: %v", err)
	}
	if _, err := svc.Login(ctx, LoginCommand{Email: "rider@example.com", OTP: "9999", Password: "secret1"}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("otp takes precedence over password: %v", err)
	}
	if err := svc.RequestLoginOTP(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("login otp for unknown user: %v", err)
	}
}

func TestMe(t *testing.T) {
	svc, users, _ := newTestService()
	signUp(t, svc, "me@example.com", types.RoleDriver)
	u, _ := users.GetByEmail(context.Background(), "me@example.com")

	p, err := svc.Me(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if p.Email != "me@example.com" || p.Role != types.RoleDriver || !p.IsVerified {
		t.Fatalf("profile = %+v", p)
	}
	if _, err := svc.Me(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

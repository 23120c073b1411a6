package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/npoportal/internal/model"
	"github.com/hitoshi/npoportal/internal/notify"
	"github.com/hitoshi/npoportal/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// --- ステートフルなフェイク ---

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	findErr  error
}

func newFakeAccountRepo(accounts ...*model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]*model.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) FindActiveByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, a := range r.accounts {
		if !a.Deleted && strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindActiveByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Deleted {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if !a.Deleted && strings.EqualFold(a.Email, account.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) UpdateRole(_ context.Context, id string, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Deleted {
		return repository.ErrAccountNotFound
	}
	a.Role = role
	return nil
}

func (r *fakeAccountRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.Deleted {
		return repository.ErrAccountNotFound
	}
	a.Deleted = true
	a.DeletedAt = &at
	a.Email, a.PasswordHash = "", ""
	return nil
}

func (r *fakeAccountRepo) ListParticipants(context.Context) ([]*model.Account, error) {
	return nil, nil
}

func (r *fakeAccountRepo) hash(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].PasswordHash
}

func (r *fakeAccountRepo) byEmail(email string) *model.Account {
	a, _ := r.FindActiveByEmail(context.Background(), email)
	return a
}

// fakeTokenRepo はPostgresTokenRepoと同じ条件付き更新の意味論を持つ。
type fakeTokenRepo struct {
	mu        sync.Mutex
	accounts  *fakeAccountRepo
	tokens    []*model.PasswordToken
	redeemErr error // 設定されている場合、パスワード書き込みの失敗を模擬する
}

func (r *fakeTokenRepo) Create(_ context.Context, token *model.PasswordToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens = append(r.tokens, &cp)
	return nil
}

func (r *fakeTokenRepo) FindValid(_ context.Context, digest string, purpose model.TokenPurpose, now time.Time) (*model.PasswordToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tk := range r.tokens {
		if tk.Digest != digest || !tk.ValidAt(now, purpose) {
			continue
		}
		r.accounts.mu.Lock()
		a, ok := r.accounts.accounts[tk.AccountID]
		eligible := ok && !a.Deleted && a.Role != model.RoleDonor
		r.accounts.mu.Unlock()
		if eligible {
			cp := *tk
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTokenRepo) Redeem(_ context.Context, token *model.PasswordToken, hash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redeemErr != nil {
		return r.redeemErr
	}
	for _, tk := range r.tokens {
		if tk.ID != token.ID {
			continue
		}
		if tk.UsedAt != nil || !tk.ExpiresAt.After(now) {
			return repository.ErrTokenUnavailable
		}
		r.accounts.mu.Lock()
		a, ok := r.accounts.accounts[tk.AccountID]
		if !ok || a.Deleted {
			r.accounts.mu.Unlock()
			return repository.ErrAccountNotFound
		}
		a.PasswordHash = hash
		r.accounts.mu.Unlock()
		usedAt := now
		tk.UsedAt = &usedAt
		return nil
	}
	return repository.ErrTokenUnavailable
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []notify.Message
	err     error
	release chan struct{} // 設定されている場合、閉じられるまで送信を保留する
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// lastToken は最後に送信されたメールのリンクから生トークンを取り出す。
func (n *fakeNotifier) lastToken(t *testing.T, path string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no email sent")
	}
	body := n.sent[len(n.sent)-1].Body
	idx := strings.Index(body, "http")
	if idx < 0 {
		t.Fatalf("no link in body: %q", body)
	}
	link := strings.Fields(body[idx:])[0]
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid link %q: %v", link, err)
	}
	if u.Path != path {
		t.Fatalf("link path = %q, want %q", u.Path, path)
	}
	return u.Query().Get("token")
}

// compile-time interface checks
var (
	_ repository.AccountRepository = (*fakeAccountRepo)(nil)
	_ repository.TokenRepository   = (*fakeTokenRepo)(nil)
	_ notify.Notifier              = (*fakeNotifier)(nil)
)

// --- テスト用の組み立て ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	accounts *fakeAccountRepo
	tokens   *fakeTokenRepo
	sessions *repository.MemorySessionStore
	notifier *fakeNotifier
	clock    *clock
	issuer   *TokenIssuer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	accounts := newFakeAccountRepo()
	f := &fixture{
		accounts: accounts,
		tokens:   &fakeTokenRepo{accounts: accounts},
		sessions: repository.NewMemorySessionStore(),
		notifier: &fakeNotifier{},
		clock:    &clock{now: time.Now().UTC()},
		issuer:   NewTokenIssuer("test-secret"),
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.svc = NewService(f.accounts, f.tokens, f.sessions, f.notifier, f.issuer, ServiceConfig{
		BaseURL:       "https://portal.example.org",
		SessionMaxAge: 86400,
		TokenTTL:      time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}, opts...)
	return f
}

// seed はアカウントを登録する。passwordが空の場合はパスワード未設定になる。
func (f *fixture) seed(t *testing.T, id, email string, role model.Role, password string) *model.Account {
	t.Helper()
	a := &model.Account{ID: id, Email: email, FirstName: "First", LastName: "Last", Role: role}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("failed to hash: %v", err)
		}
		a.PasswordHash = string(hash)
	}
	f.accounts.accounts[id] = a
	return a
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("error code = %s, want %s (%s)", apiErr.Code, code, apiErr.Message)
	}
}

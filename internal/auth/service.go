// Package auth はログイン・サインアップ・パスワード作成/再設定のワークフローと
// セッション発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/npoportal/internal/metrics"
	"github.com/hitoshi/npoportal/internal/model"
	"github.com/hitoshi/npoportal/internal/notify"
	"github.com/hitoshi/npoportal/internal/repository"
	"github.com/hitoshi/npoportal/internal/security"
)

// AccountStatus は既存参加者ページでの照会結果。
type AccountStatus int

const (
	// StatusNotFound は該当アカウントがないことを表す。
	StatusNotFound AccountStatus = iota
	// StatusHasPassword はパスワード設定済みでログインが必要なことを表す。
	StatusHasPassword
	// StatusNeedsPassword はパスワード未設定で作成リンクを送信したことを表す。
	StatusNeedsPassword
)

func (s AccountStatus) String() string {
	switch s {
	case StatusHasPassword:
		return "has_password"
	case StatusNeedsPassword:
		return "needs_password"
	default:
		return "not_found"
	}
}

// errNotify はメール送信の失敗を表す。呼び出し元が握りつぶすかを判断できるようにする。
var errNotify = errors.New("notifier failed")

// backgroundSendTimeout は応答後に行うメール送信（再送を含む）の上限時間。
const backgroundSendTimeout = 30 * time.Second

// loginEntry はログイン経路ごとに受け付けるロールを表す。
type loginEntry struct {
	name  string
	roles []model.Role
}

func (e loginEntry) allows(role model.Role) bool {
	for _, r := range e.roles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	participantEntry = loginEntry{name: metrics.EntryParticipant, roles: []model.Role{model.RoleParticipant, model.RoleAdmin}}
	adminEntry       = loginEntry{name: metrics.EntryAdmin, roles: []model.Role{model.RoleAdmin}}
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL       string        // メールリンクの基底URL
	SessionMaxAge int           // セッション有効期間（秒）
	TokenTTL      time.Duration // パスワードトークンの有効期間
	BcryptCost    int           // 0の場合はDefaultBcryptCost
}

// Result はセッションを確立した操作の結果。
type Result struct {
	Session *model.Session
	Token   string
	Account model.PublicAccount
}

// Service はアカウントワークフローのビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	tokens    repository.TokenRepository
	sessions  repository.SessionStore
	notifier  notify.Notifier
	issuer    *TokenIssuer
	links     notify.Links
	config    ServiceConfig
	identity  IdentityProvider
	metrics   metrics.MetricsCollector
	sanitizer security.TextSanitizer
	now       func() time.Time

	// background は応答後に送るメールの完了待ちに使う。
	background sync.WaitGroup
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithIdentityProvider は資格情報ストアより先に照合するIdentityProviderを設定する。
func WithIdentityProvider(p IdentityProvider) Option {
	return func(s *Service) { s.identity = p }
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSanitizer はプロフィール項目のサニタイザーを設定する。
func WithSanitizer(t security.TextSanitizer) Option {
	return func(s *Service) { s.sanitizer = t }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens repository.TokenRepository,
	sessions repository.SessionStore,
	notifier notify.Notifier,
	issuer *TokenIssuer,
	config ServiceConfig,
	opts ...Option,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = DefaultBcryptCost
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = time.Hour
	}
	if config.SessionMaxAge == 0 {
		config.SessionMaxAge = 86400
	}
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		issuer:   issuer,
		links:    notify.Links{BaseURL: config.BaseURL},
		config:   config,
		metrics:  metrics.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup は参加者アカウントを作成し、セッションを確立する。
// 同じメールアドレスのパスワード未設定アカウントがある場合は作成リンクを送信し、
// EMAIL_EXISTS_NO_PASSWORDを返す。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Result, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = s.clean(in.FirstName)
	in.LastName = s.clean(in.LastName)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindActiveByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		// 寄付者は認証できないため、パスワード作成リンクも送らない
		if existing.HasPassword() || existing.Role == model.RoleDonor {
			return nil, model.NewEmailExistsWithPasswordError()
		}
		if err := s.sendPasswordLink(ctx, existing, model.PurposeCreatePassword); err != nil {
			return nil, err
		}
		return nil, model.NewEmailExistsNoPasswordError()
	}

	hash, err := hashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &model.Account{
		ID:              uuid.New().String(),
		Email:           in.Email,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Role:            model.RoleParticipant,
		PasswordHash:    hash,
		Address:         s.clean(in.Address),
		City:            s.clean(in.City),
		State:           s.clean(in.State),
		Zip:             in.Zip,
		FieldOfInterest: s.clean(in.FieldOfInterest),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Phone != "" {
		account.Phone = formatPhone(in.Phone)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailExistsWithPasswordError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account signed up", slog.String("account_id", account.ID))
	return s.establish(ctx, account)
}

// Login は参加者向けの入口でログインする。管理者アカウントも受け付ける。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	return s.login(ctx, participantEntry, email, password)
}

// AdminLogin は管理者向けの入口でログインする。管理者ロールのみ受け付ける。
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*Result, error) {
	return s.login(ctx, adminEntry, email, password)
}

func (s *Service) login(ctx context.Context, entry loginEntry, email, password string) (*Result, error) {
	email = normalizeEmail(email)
	if err := validateStruct(credentialsInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	if s.identity != nil {
		if acc := s.identity.Authenticate(email, password); acc != nil && entry.allows(acc.Role) {
			slog.Warn("development identity used for login", slog.String("account_id", acc.ID))
			s.metrics.RecordLogin(metrics.EntryDev, metrics.ResultSuccess)
			return s.establish(ctx, acc)
		}
	}

	account, err := s.accounts.FindActiveByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil || !entry.allows(account.Role) {
		s.metrics.RecordLogin(entry.name, metrics.ResultInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	if !account.HasPassword() {
		s.metrics.RecordLogin(entry.name, metrics.ResultPasswordNotSet)
		if err := s.sendPasswordLink(ctx, account, model.PurposeCreatePassword); err != nil {
			return nil, err
		}
		return nil, model.NewPasswordNotSetError()
	}

	ok, err := checkPassword(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.RecordLogin(entry.name, metrics.ResultInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	s.metrics.RecordLogin(entry.name, metrics.ResultSuccess)
	slog.Info("account logged in",
		slog.String("account_id", account.ID),
		slog.String("entry", entry.name),
	)
	return s.establish(ctx, account)
}

// Logout はセッションを破棄する。セッションが存在しない場合も成功する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ForgotPassword は再設定リンクを送信する。
// アカウントの有無にかかわらず同じ結果を返すため、送信処理の失敗はログに残すだけにする。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateStruct(emailInput{Email: email}); err != nil {
		return err
	}

	account, err := s.accounts.FindActiveByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil || account.Role == model.RoleDonor {
		return nil
	}

	if err := s.sendPasswordLink(ctx, account, model.PurposeResetPassword); err != nil {
		slog.Error("failed to send password reset link",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword は再設定トークンを引き換えて新しいパスワードを設定する。
// 自動ログインは行わない。
func (s *Service) ResetPassword(ctx context.Context, rawToken, password string) error {
	token, err := s.findToken(ctx, rawToken, model.PurposeResetPassword)
	if err != nil {
		return err
	}
	if err := validateStruct(newPasswordInput{Password: password, ConfirmPassword: password}); err != nil {
		return err
	}

	if _, err := s.redeem(ctx, token, password); err != nil {
		return err
	}
	slog.Info("password reset", slog.String("account_id", token.AccountID))
	return nil
}

// CreatePassword は作成トークンを引き換えてパスワードを設定し、セッションを確立する。
func (s *Service) CreatePassword(ctx context.Context, rawToken, password, confirmPassword string) (*Result, error) {
	if err := validateStruct(newPasswordInput{Password: password, ConfirmPassword: confirmPassword}); err != nil {
		return nil, err
	}
	token, err := s.findToken(ctx, rawToken, model.PurposeCreatePassword)
	if err != nil {
		return nil, err
	}

	account, err := s.redeem(ctx, token, password)
	if err != nil {
		return nil, err
	}
	slog.Info("password created", slog.String("account_id", account.ID))
	return s.establish(ctx, account)
}

// RequestAccountStatus は既存参加者ページでアカウントの状態を照会する。
// パスワード未設定の場合は作成リンクを送信する。送信失敗は結果に影響させない。
func (s *Service) RequestAccountStatus(ctx context.Context, email string) (AccountStatus, error) {
	email = normalizeEmail(email)
	if err := validateStruct(emailInput{Email: email}); err != nil {
		return StatusNotFound, err
	}

	account, err := s.accounts.FindActiveByEmail(ctx, email)
	if err != nil {
		return StatusNotFound, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil || account.Role == model.RoleDonor {
		return StatusNotFound, nil
	}
	if account.HasPassword() {
		return StatusHasPassword, nil
	}

	// 応答時間でアカウントの有無が推測されないよう、トークン発行とメール送信は応答後に行う
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundSendTimeout)
		defer cancel()
		if err := s.sendPasswordLink(sendCtx, account, model.PurposeCreatePassword); err != nil {
			slog.Error("failed to send password creation link",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return StatusNeedsPassword, nil
}

// Wait は応答後に送信中のメールがすべて完了するまで待つ。
func (s *Service) Wait() {
	s.background.Wait()
}

// GetCurrentAccount はセッションのアカウントを再取得する。
// アカウントが削除されていた場合はセッションを破棄してUNAUTHORIZEDを返す。
func (s *Service) GetCurrentAccount(ctx context.Context, session *model.Session) (*model.PublicAccount, error) {
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	if s.identity != nil {
		if acc := s.identity.Lookup(session.AccountID); acc != nil {
			pub := acc.Public()
			return &pub, nil
		}
	}

	account, err := s.accounts.FindActiveByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
		slog.Info("session destroyed for missing account", slog.String("account_id", session.AccountID))
		return nil, model.NewUnauthorizedError()
	}

	pub := account.Public()
	return &pub, nil
}

// findToken は生トークンに対応する有効なトークンを取得する。
func (s *Service) findToken(ctx context.Context, rawToken string, purpose model.TokenPurpose) (*model.PasswordToken, error) {
	if rawToken == "" {
		s.metrics.RecordTokenRedeemed(string(purpose), metrics.ResultInvalidToken)
		return nil, model.NewInvalidTokenError()
	}
	token, err := s.tokens.FindValid(ctx, TokenDigest(rawToken), purpose, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if token == nil {
		s.metrics.RecordTokenRedeemed(string(purpose), metrics.ResultInvalidToken)
		return nil, model.NewInvalidTokenError()
	}
	return token, nil
}

// redeem はパスワードを書き込みトークンを使用済みにし、対象アカウントを返す。
// 退会済みまたは寄付者のアカウントに紐づくトークンは無効として扱い、何も書き込まない。
func (s *Service) redeem(ctx context.Context, token *model.PasswordToken, password string) (*model.Account, error) {
	purpose := string(token.Purpose)

	account, err := s.accounts.FindActiveByID(ctx, token.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || account.Role == model.RoleDonor {
		s.metrics.RecordTokenRedeemed(purpose, metrics.ResultInvalidToken)
		return nil, model.NewInvalidTokenError()
	}

	hash, err := hashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Redeem(ctx, token, hash, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenUnavailable):
			s.metrics.RecordTokenRedeemed(purpose, metrics.ResultAlreadyUsed)
			return nil, model.NewTokenAlreadyUsedError()
		case errors.Is(err, repository.ErrAccountNotFound):
			s.metrics.RecordTokenRedeemed(purpose, metrics.ResultInvalidToken)
			return nil, model.NewInvalidTokenError()
		default:
			return nil, fmt.Errorf("failed to redeem token: %w", err)
		}
	}
	s.metrics.RecordTokenRedeemed(purpose, metrics.ResultSuccess)

	account.PasswordHash = hash
	return account, nil
}

// sendPasswordLink はトークンを発行し、リンクをメールで送信する。
// 送信の失敗はerrNotifyでラップして返す。
func (s *Service) sendPasswordLink(ctx context.Context, account *model.Account, purpose model.TokenPurpose) error {
	raw, err := newRawToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	token := &model.PasswordToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Digest:    TokenDigest(raw),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TokenTTL),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	s.metrics.RecordTokenIssued(string(purpose))
	slog.Info("password token issued",
		slog.String("account_id", account.ID),
		slog.String("purpose", string(purpose)),
	)

	var msg notify.Message
	switch purpose {
	case model.PurposeResetPassword:
		msg = notify.ResetPasswordMessage(account.Email, account.FirstName, s.links.ResetPasswordURL(raw), s.config.TokenTTL)
	default:
		msg = notify.CreatePasswordMessage(account.Email, account.FirstName, s.links.CreatePasswordURL(raw), s.config.TokenTTL)
	}

	if err := s.notifier.Send(ctx, msg); err != nil {
		s.metrics.RecordNotifierFailure()
		return fmt.Errorf("%w: %w", errNotify, err)
	}
	return nil
}

// establish はセッションを作成し、Bearerトークンと公開情報を返す。
func (s *Service) establish(ctx context.Context, account *model.Account) (*Result, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.issuer.Issue(session)
	if err != nil {
		return nil, err
	}

	return &Result{Session: session, Token: token, Account: account.Public()}, nil
}

func (s *Service) clean(v string) string {
	if s.sanitizer == nil {
		return v
	}
	return s.sanitizer.Sanitize(v)
}

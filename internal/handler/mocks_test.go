package handler

import (
	"context"
	"time"

	"github.com/hitoshi/npoportal/internal/account"
	"github.com/hitoshi/npoportal/internal/auth"
	"github.com/hitoshi/npoportal/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn               func(ctx context.Context, in auth.SignupInput) (*auth.Result, error)
	loginFn                func(ctx context.Context, email, password string) (*auth.Result, error)
	adminLoginFn           func(ctx context.Context, email, password string) (*auth.Result, error)
	logoutFn               func(ctx context.Context, sessionID string) error
	forgotPasswordFn       func(ctx context.Context, email string) error
	resetPasswordFn        func(ctx context.Context, token, password string) error
	createPasswordFn       func(ctx context.Context, token, password, confirm string) (*auth.Result, error)
	requestAccountStatusFn func(ctx context.Context, email string) (auth.AccountStatus, error)
	getCurrentAccountFn    func(ctx context.Context, session *model.Session) (*model.PublicAccount, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*auth.Result, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) AdminLogin(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.adminLoginFn != nil {
		return m.adminLoginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, password string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, password)
	}
	return nil
}

func (m *mockAuthService) CreatePassword(ctx context.Context, token, password, confirm string) (*auth.Result, error) {
	if m.createPasswordFn != nil {
		return m.createPasswordFn(ctx, token, password, confirm)
	}
	return nil, nil
}

func (m *mockAuthService) RequestAccountStatus(ctx context.Context, email string) (auth.AccountStatus, error) {
	if m.requestAccountStatusFn != nil {
		return m.requestAccountStatusFn(ctx, email)
	}
	return auth.StatusNotFound, nil
}

func (m *mockAuthService) GetCurrentAccount(ctx context.Context, session *model.Session) (*model.PublicAccount, error) {
	if m.getCurrentAccountFn != nil {
		return m.getCurrentAccountFn(ctx, session)
	}
	return nil, nil
}

type mockAccountService struct {
	getFn              func(ctx context.Context, id string) (*model.PublicAccount, error)
	listParticipantsFn func(ctx context.Context) ([]model.PublicAccount, error)
	setRoleFn          func(ctx context.Context, id string, role model.Role) (*model.PublicAccount, error)
	deleteFn           func(ctx context.Context, id string) error
}

func (m *mockAccountService) Get(ctx context.Context, id string) (*model.PublicAccount, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountService) ListParticipants(ctx context.Context) ([]model.PublicAccount, error) {
	if m.listParticipantsFn != nil {
		return m.listParticipantsFn(ctx)
	}
	return nil, nil
}

func (m *mockAccountService) SetRole(ctx context.Context, id string, role model.Role) (*model.PublicAccount, error) {
	if m.setRoleFn != nil {
		return m.setRoleFn(ctx, id, role)
	}
	return nil, nil
}

func (m *mockAccountService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// compile-time interface checks
var (
	_ AuthServiceInterface    = (*mockAuthService)(nil)
	_ AccountServiceInterface = (*mockAccountService)(nil)
	_ AuthServiceInterface    = (*auth.Service)(nil)
	_ AccountServiceInterface = (*account.Service)(nil)
)

func testResult(accountID string, role model.Role) *auth.Result {
	now := time.Now()
	return &auth.Result{
		Session: &model.Session{
			ID:        "sess-" + accountID,
			AccountID: accountID,
			Role:      role,
			ExpiresAt: now.Add(24 * time.Hour),
			CreatedAt: now,
		},
		Token: "jwt-" + accountID,
		Account: model.PublicAccount{
			ID:        accountID,
			Email:     accountID + "@example.org",
			FirstName: "Pat",
			LastName:  "Lee",
			Role:      role,
		},
	}
}

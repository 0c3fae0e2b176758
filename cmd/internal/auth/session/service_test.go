package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"wicket/cmd/account"
	"wicket/cmd/internal/auth/reset"
	"wicket/cmd/security/jwt"
	"wicket/cmd/security/password"
	"wicket/cmd/security/token"
)

// ---- in-memory fakes ----

type fakeAccounts struct {
	byID   map[string]account.Account
	nextID int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]account.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, in account.CreateInput) (account.Account, error) {
	norm := account.NormalizeEmail(in.Email)
	for _, a := range f.byID {
		if a.EmailNorm == norm {
			return account.Account{}, account.ConflictError{Op: "fake.Create", Field: "email"}
		}
	}
	f.nextID++
	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	a := account.Account{
		ID:           "acc_" + strconv.Itoa(f.nextID),
		Email:        in.Email,
		EmailNorm:    norm,
		PasswordHash: in.PasswordHash,
		DisplayName:  in.DisplayName,
		Roles:        roles,
		Status:       account.StatusActive,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	f.byID[a.ID] = a
	return a, nil
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (account.Account, error) {
	norm := account.NormalizeEmail(email)
	for _, a := range f.byID {
		if a.EmailNorm == norm {
			return a, nil
		}
	}
	return account.Account{}, account.NotFoundError{Op: "fake.FindByEmail", Resource: "account"}
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (account.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return account.Account{}, account.NotFoundError{Op: "fake.FindByID", Resource: "account"}
	}
	return a, nil
}

func (f *fakeAccounts) UpdateCredential(_ context.Context, id string, hash string, now time.Time) error {
	a, ok := f.byID[id]
	if !ok {
		return account.NotFoundError{Op: "fake.UpdateCredential", Resource: "account"}
	}
	a.PasswordHash = hash
	a.UpdatedAt = now
	f.byID[id] = a
	return nil
}

func (f *fakeAccounts) SetStatus(_ context.Context, id string, status string, now time.Time) error {
	a, ok := f.byID[id]
	if !ok {
		return account.NotFoundError{Op: "fake.SetStatus", Resource: "account"}
	}
	a.Status = status
	a.UpdatedAt = now
	f.byID[id] = a
	return nil
}

type fakeGrants struct {
	rows   map[string]*Row // keyed by grant ID
	nextID int
}

func newFakeGrants() *fakeGrants {
	return &fakeGrants{rows: map[string]*Row{}}
}

func (f *fakeGrants) Create(_ context.Context, now time.Time, accountID, tokenHash string, expiresAt time.Time, meta Meta) (string, error) {
	f.nextID++
	id := "grant_" + strconv.Itoa(f.nextID)
	lu := now
	f.rows[id] = &Row{
		ID:         id,
		AccountID:  accountID,
		TokenHash:  tokenHash,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
		CreatedAt:  now,
		LastUsedAt: &lu,
		ExpiresAt:  expiresAt,
	}
	return id, nil
}

func (f *fakeGrants) GetActiveByDigest(_ context.Context, tokenHash string, now time.Time) (Row, error) {
	for _, r := range f.rows {
		if r.TokenHash != tokenHash {
			continue
		}
		if r.RevokedAt != nil {
			return Row{}, ErrGrantRevoked
		}
		if !r.ExpiresAt.After(now) {
			return Row{}, ErrGrantExpired
		}
		return *r, nil
	}
	return Row{}, ErrGrantNotFound
}

func (f *fakeGrants) RevokeByDigest(_ context.Context, now time.Time, tokenHash, reason string) error {
	for _, r := range f.rows {
		if r.TokenHash == tokenHash {
			if r.RevokedAt == nil {
				ts := now
				r.RevokedAt = &ts
				r.RevokedReason = &reason
			}
			return nil
		}
	}
	return ErrGrantNotFound
}

func (f *fakeGrants) RevokeAllForAccount(_ context.Context, now time.Time, accountID, reason string) error {
	for _, r := range f.rows {
		if r.AccountID == accountID && r.RevokedAt == nil {
			ts := now
			r.RevokedAt = &ts
			r.RevokedReason = &reason
		}
	}
	return nil
}

func (f *fakeGrants) Touch(_ context.Context, now time.Time, grantID string) error {
	if r, ok := f.rows[grantID]; ok {
		ts := now
		r.LastUsedAt = &ts
	}
	return nil
}

func (f *fakeGrants) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, r := range f.rows {
		if !r.ExpiresAt.After(now) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeResets struct {
	grants  map[string]*reset.Grant // keyed by plain token
	nextID  int
	ttl     time.Duration
	issueFn func() error
}

func newFakeResets() *fakeResets {
	return &fakeResets{grants: map[string]*reset.Grant{}, ttl: 15 * time.Minute}
}

func (f *fakeResets) Issue(_ context.Context, accountID string, meta reset.Meta, now time.Time) (reset.Grant, string, error) {
	if f.issueFn != nil {
		if err := f.issueFn(); err != nil {
			return reset.Grant{}, "", err
		}
	}
	f.nextID++
	plain := "reset-token-" + strconv.Itoa(f.nextID)
	g := reset.Grant{
		ID:        "rst_" + strconv.Itoa(f.nextID),
		AccountID: accountID,
		TokenHash: token.HashTokenHex(plain),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}
	f.grants[plain] = &g
	return g, plain, nil
}

func (f *fakeResets) Consume(_ context.Context, plain string, now time.Time) (reset.Grant, error) {
	g, ok := f.grants[plain]
	if !ok {
		return reset.Grant{}, reset.ErrNotFound
	}
	if g.UsedAt != nil {
		return reset.Grant{}, reset.ErrAlreadyUsed
	}
	if !g.ExpiresAt.After(now) {
		return reset.Grant{}, reset.ErrExpired
	}
	used := now
	g.UsedAt = &used
	return *g, nil
}

type captureNotifier struct {
	tokens []string
	accts  []account.Account
}

func (c *captureNotifier) Notify(_ context.Context, acct account.Account, plain string, _ time.Time) error {
	c.accts = append(c.accts, acct)
	c.tokens = append(c.tokens, plain)
	return nil
}

// ---- harness ----

type harness struct {
	svc      *Service
	accounts *fakeAccounts
	grants   *fakeGrants
	resets   *fakeResets
	notify   *captureNotifier
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(token.HMACEnvKey, "")

	cfg := DefaultConfig()
	cfg.AccessSecret = []byte("access-secret-for-tests-0123456789")
	cfg.RefreshSecret = []byte("refresh-secret-for-tests-0123456789")

	codec, err := jwt.NewCodec(cfg.CodecConfig())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	pwCfg := password.DefaultConfig()
	pwCfg.Params.Cost = 4

	h := &harness{
		accounts: newFakeAccounts(),
		grants:   newFakeGrants(),
		resets:   newFakeResets(),
		notify:   &captureNotifier{},
		now:      time.Now().UTC(),
	}
	svc, err := NewService(cfg, h.accounts, password.NewHasher(pwCfg), codec, h.grants, h.resets, WithNotifier(h.notify))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) register(t *testing.T, email, pw string) account.Account {
	t.Helper()
	acct, err := h.svc.Register(context.Background(), h.now, email, pw, nil)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return acct
}

func (h *harness) login(t *testing.T, email, pw string) Issued {
	t.Helper()
	issued, err := h.svc.Login(context.Background(), h.now, email, pw, Meta{})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return issued
}

// ---- tests ----

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)

	h.register(t, "first@example.com", "sturdy password 1")

	_, err := h.svc.Register(context.Background(), h.now, "First@Example.COM", "sturdy password 2", nil)
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("want ErrEmailInUse, got %v", err)
	}
}

func TestRegisterWeakPasswordRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), h.now, "weak@example.com", "short", nil)
	if !errors.Is(err, password.ErrTooShort) {
		t.Fatalf("want ErrTooShort, got %v", err)
	}
	if _, err := h.accounts.FindByEmail(context.Background(), "weak@example.com"); !account.IsNotFound(err) {
		t.Fatal("account created despite policy rejection")
	}
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "login@example.com", "sturdy password 1")

	issued := h.login(t, "login@example.com", "sturdy password 1")

	if issued.AccountID != acct.ID {
		t.Fatalf("account = %q", issued.AccountID)
	}

	claims, err := h.svc.Authenticate(context.Background(), issued.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.Subject != acct.ID {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
		t.Fatalf("roles = %v", claims.Roles)
	}

	// The grant row holds the refresh digest, never the plain token.
	row, err := h.grants.GetActiveByDigest(context.Background(), token.HashTokenHex(issued.RefreshToken), h.now)
	if err != nil {
		t.Fatalf("grant lookup: %v", err)
	}
	if row.TokenHash == issued.RefreshToken {
		t.Fatal("plain refresh token persisted")
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "fail@example.com", "sturdy password 1")

	if _, err := h.svc.Login(context.Background(), h.now, "fail@example.com", "wrong password!", Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := h.svc.Login(context.Background(), h.now, "nobody@example.com", "sturdy password 1", Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: want ErrInvalidCredentials, got %v", err)
	}

	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusDisabled, h.now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := h.svc.Login(context.Background(), h.now, "fail@example.com", "sturdy password 1", Meta{}); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("disabled account: want ErrAccountDisabled, got %v", err)
	}
}

func TestRefreshKeepsTokenAndGrant(t *testing.T) {
	h := newHarness(t)
	h.register(t, "refresh@example.com", "sturdy password 1")
	issued := h.login(t, "refresh@example.com", "sturdy password 1")

	later := h.now.Add(5 * time.Minute)
	next, err := h.svc.Refresh(context.Background(), later, issued.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if next.RefreshToken != issued.RefreshToken {
		t.Fatal("refresh token rotated unexpectedly")
	}
	if next.GrantID != issued.GrantID {
		t.Fatal("grant replaced unexpectedly")
	}
	if !next.RefreshExpiresAt.Equal(issued.RefreshExpiresAt) {
		t.Fatal("refresh expiry extended")
	}
	if next.AccessToken == issued.AccessToken {
		t.Fatal("access token not re-minted")
	}
	if _, err := h.svc.Authenticate(context.Background(), next.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestRefreshFailures(t *testing.T) {
	h := newHarness(t)
	h.register(t, "rf@example.com", "sturdy password 1")
	issued := h.login(t, "rf@example.com", "sturdy password 1")

	if _, err := h.svc.Refresh(context.Background(), h.now, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token: want ErrMissingToken, got %v", err)
	}
	if _, err := h.svc.Refresh(context.Background(), h.now, "garbage.token.value"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: want ErrInvalidToken, got %v", err)
	}

	// Logout revokes the grant; the still-valid JWT must stop working.
	if err := h.svc.Logout(context.Background(), h.now, issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.svc.Refresh(context.Background(), h.now, issued.RefreshToken); !errors.Is(err, ErrGrantRevoked) {
		t.Fatalf("revoked grant: want ErrGrantRevoked, got %v", err)
	}

	// Logout stays idempotent.
	if err := h.svc.Logout(context.Background(), h.now, issued.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := h.svc.Logout(context.Background(), h.now, "never-issued"); err != nil {
		t.Fatalf("unknown-token Logout: %v", err)
	}
}

func TestRefreshExpiredGrant(t *testing.T) {
	h := newHarness(t)
	h.register(t, "exp@example.com", "sturdy password 1")
	issued := h.login(t, "exp@example.com", "sturdy password 1")

	// Past the grant expiry the read path treats the row as absent,
	// regardless of whether the sweeper already deleted it.
	after := issued.RefreshExpiresAt.Add(time.Second)
	if _, err := h.svc.Refresh(context.Background(), after, issued.RefreshToken); !errors.Is(err, ErrGrantRevoked) && !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired grant: got %v", err)
	}
}

func TestChangePasswordCascades(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "change@example.com", "sturdy password 1")
	first := h.login(t, "change@example.com", "sturdy password 1")
	second := h.login(t, "change@example.com", "sturdy password 1")

	if err := h.svc.ChangePassword(context.Background(), h.now, acct.ID, "wrong current", "sturdy password 2"); !errors.Is(err, ErrCurrentPasswordInvalid) {
		t.Fatalf("want ErrCurrentPasswordInvalid, got %v", err)
	}

	if err := h.svc.ChangePassword(context.Background(), h.now, acct.ID, "sturdy password 1", "sturdy password 2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Every outstanding grant is revoked.
	for _, issued := range []Issued{first, second} {
		if _, err := h.svc.Refresh(context.Background(), h.now, issued.RefreshToken); !errors.Is(err, ErrGrantRevoked) {
			t.Fatalf("grant survived password change: %v", err)
		}
	}

	// Old password is dead, new one works.
	if _, err := h.svc.Login(context.Background(), h.now, "change@example.com", "sturdy password 1", Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	h.login(t, "change@example.com", "sturdy password 2")
}

func TestForgotPasswordIsUniform(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "forgot@example.com", "sturdy password 1")

	if err := h.svc.ForgotPassword(context.Background(), h.now, "forgot@example.com", Meta{}); err != nil {
		t.Fatalf("known email: %v", err)
	}
	if err := h.svc.ForgotPassword(context.Background(), h.now, "unknown@example.com", Meta{}); err != nil {
		t.Fatalf("unknown email must succeed silently: %v", err)
	}

	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusDisabled, h.now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := h.svc.ForgotPassword(context.Background(), h.now, "forgot@example.com", Meta{}); err != nil {
		t.Fatalf("disabled account must succeed silently: %v", err)
	}

	// Exactly one token went out: the active-account request.
	if len(h.notify.tokens) != 1 {
		t.Fatalf("notified %d times, want 1", len(h.notify.tokens))
	}
	if h.notify.accts[0].ID != acct.ID {
		t.Fatalf("notified wrong account: %s", h.notify.accts[0].ID)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "reset@example.com", "sturdy password 1")
	issued := h.login(t, "reset@example.com", "sturdy password 1")

	if err := h.svc.ForgotPassword(context.Background(), h.now, "reset@example.com", Meta{}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	plain := h.notify.tokens[0]

	if err := h.svc.ResetPassword(context.Background(), h.now, plain, "sturdy password 2"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// Single-use: the same token cannot reset twice.
	if err := h.svc.ResetPassword(context.Background(), h.now, plain, "sturdy password 3"); !errors.Is(err, ErrResetTokenUsed) {
		t.Fatalf("second reset: want ErrResetTokenUsed, got %v", err)
	}
	if err := h.svc.ResetPassword(context.Background(), h.now, "bogus-token", "sturdy password 3"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("bogus token: want ErrResetTokenInvalid, got %v", err)
	}

	// Cascade killed the pre-reset session.
	if _, err := h.svc.Refresh(context.Background(), h.now, issued.RefreshToken); !errors.Is(err, ErrGrantRevoked) {
		t.Fatalf("grant survived reset: %v", err)
	}

	// New credential works.
	h.login(t, "reset@example.com", "sturdy password 2")
}

func TestRefreshAccountGoneOrDisabled(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "gone@example.com", "sturdy password 1")
	issued := h.login(t, "gone@example.com", "sturdy password 1")

	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusDisabled, h.now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := h.svc.Refresh(context.Background(), h.now, issued.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled account: want ErrUnauthorized, got %v", err)
	}

	// A deleted account reads the same as a disabled one.
	delete(h.accounts.byID, acct.ID)
	if _, err := h.svc.Refresh(context.Background(), h.now, issued.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("deleted account: want ErrUnauthorized, got %v", err)
	}
}

func TestChangePasswordDisabledAccount(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "locked@example.com", "sturdy password 1")

	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusDisabled, h.now); err != nil {
		t.Fatalf("disable: %v", err)
	}

	err := h.svc.ChangePassword(context.Background(), h.now, acct.ID, "sturdy password 1", "sturdy password 2")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("want ErrAccountDisabled, got %v", err)
	}

	// The stored credential did not move.
	if h.accounts.byID[acct.ID].PasswordHash != acct.PasswordHash {
		t.Fatal("credential rotated on a disabled account")
	}
}

func TestResetPasswordDeadOwner(t *testing.T) {
	h := newHarness(t)
	acct := h.register(t, "dead@example.com", "sturdy password 1")

	issueToken := func() string {
		t.Helper()
		if err := h.svc.ForgotPassword(context.Background(), h.now, "dead@example.com", Meta{}); err != nil {
			t.Fatalf("ForgotPassword: %v", err)
		}
		return h.notify.tokens[len(h.notify.tokens)-1]
	}

	// Disabled between issue and consume: the token reads as dead.
	plain := issueToken()
	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusDisabled, h.now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := h.svc.ResetPassword(context.Background(), h.now, plain, "sturdy password 2"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("disabled owner: want ErrResetTokenInvalid, got %v", err)
	}
	if h.accounts.byID[acct.ID].PasswordHash != acct.PasswordHash {
		t.Fatal("credential rotated for a disabled owner")
	}

	// A vanished owner reads the same, never a raw store error.
	if err := h.accounts.SetStatus(context.Background(), acct.ID, account.StatusActive, h.now); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	plain = issueToken()
	delete(h.accounts.byID, acct.ID)
	if err := h.svc.ResetPassword(context.Background(), h.now, plain, "sturdy password 2"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("vanished owner: want ErrResetTokenInvalid, got %v", err)
	}
}

func TestResetPasswordMissingToken(t *testing.T) {
	h := newHarness(t)

	if err := h.svc.ResetPassword(context.Background(), h.now, "  ", "sturdy password 2"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("blank token: want ErrMissingToken, got %v", err)
	}
}

func TestGrantsRecordClientMeta(t *testing.T) {
	h := newHarness(t)
	h.register(t, "meta@example.com", "sturdy password 1")

	meta := Meta{UserAgent: "wicket-cli/1.0", IP: "192.0.2.10"}
	issued, err := h.svc.Login(context.Background(), h.now, "meta@example.com", "sturdy password 1", meta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	row, err := h.grants.GetActiveByDigest(context.Background(), token.HashTokenHex(issued.RefreshToken), h.now)
	if err != nil {
		t.Fatalf("grant lookup: %v", err)
	}
	if row.UserAgent != meta.UserAgent || row.IP != meta.IP {
		t.Fatalf("grant meta = %q/%q", row.UserAgent, row.IP)
	}

	if err := h.svc.ForgotPassword(context.Background(), h.now, "meta@example.com", meta); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	rg := h.resets.grants[h.notify.tokens[0]]
	if rg.UserAgent != meta.UserAgent || rg.IP != meta.IP {
		t.Fatalf("reset grant meta = %q/%q", rg.UserAgent, rg.IP)
	}

	// Revocations carry their cause onto the row.
	if err := h.svc.Logout(context.Background(), h.now, issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	revoked := h.grants.rows[issued.GrantID]
	if revoked.RevokedReason == nil || *revoked.RevokedReason != RevokedByLogout {
		t.Fatalf("revoked reason = %v", revoked.RevokedReason)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.register(t, "late@example.com", "sturdy password 1")

	if err := h.svc.ForgotPassword(context.Background(), h.now, "late@example.com", Meta{}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	plain := h.notify.tokens[0]

	late := h.now.Add(16 * time.Minute)
	if err := h.svc.ResetPassword(context.Background(), late, plain, "sturdy password 2"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expired token: want ErrResetTokenInvalid, got %v", err)
	}
}

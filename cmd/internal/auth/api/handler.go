package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"wicket/cmd/account"
	"wicket/cmd/internal/auth/session"
	"wicket/cmd/security/jwt"
	"wicket/cmd/security/password"
)

// Handler wires the HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	svc      *session.Service
	accounts account.Store

	metrics *Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics attaches Prometheus counters to the handler.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *session.Service, accounts account.Store, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if accounts == nil {
		return nil, errors.New("authapi: nil account store")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		svc:      svc,
		accounts: accounts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/change-password", h.handleChangePassword)
	mux.HandleFunc("/auth/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("/auth/reset-password", h.handleResetPassword)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, "validation_error", "a valid email is required")
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "password is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	acct, err := h.svc.Register(ctx, now, email, req.Password, trimPtr(req.DisplayName))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmailInUse):
			writeError(w, http.StatusConflict, "email_in_use", "email already in use")
		case isPasswordPolicyError(err):
			writeError(w, http.StatusBadRequest, "validation_error", policyMessage(err))
		case account.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "validation_error", "invalid registration input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRegister(r, acct.ID, acct.Email)
	writeJSON(w, http.StatusCreated, registerResponse{Account: toAccountResponse(acct)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.svc.Login(ctx, now, email, req.Password, h.requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			h.metrics.login("denied")
			h.auditLoginFailed(r, email, "bad_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case errors.Is(err, session.ErrAccountDisabled):
			h.metrics.login("disabled")
			h.auditLoginFailed(r, email, "account_disabled")
			writeError(w, http.StatusForbidden, "account_disabled", "account is disabled")
		default:
			h.metrics.login("error")
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	acct, err := h.accounts.FindByID(ctx, issued.AccountID)
	if err != nil {
		h.log.Error("auth.login.load_account.fail", "err", err, "account_id", issued.AccountID)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.login("ok")
	h.auditLoginSuccess(r, issued.AccountID, issued.GrantID, acct.Email)

	webTransport := h.shouldUseWebCookieTransport(req.Web)
	if webTransport {
		if _, err := h.setWebSessionCookies(w, issued.RefreshToken, issued.RefreshExpiresAt); err != nil {
			h.log.Error("auth.login.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Account: toAccountResponse(acct),
		Tokens:  toTokenResponse(issued, !webTransport),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok && refreshToken == "" {
		fromCookie = true
		refreshToken = cookieToken
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "refresh_token is required")
		return
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.svc.Refresh(ctx, now, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingToken):
			writeError(w, http.StatusBadRequest, "validation_error", "refresh_token is required")
		case errors.Is(err, session.ErrGrantRevoked):
			h.metrics.refresh("revoked")
			h.auditRefreshFailed(r, "grant_revoked")
			writeError(w, http.StatusUnauthorized, "refresh_revoked", "refresh grant is no longer active")
		case errors.Is(err, session.ErrInvalidToken):
			h.metrics.refresh("invalid")
			h.auditRefreshFailed(r, "invalid_token")
			writeError(w, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
		case errors.Is(err, session.ErrUnauthorized):
			// Vanished and disabled accounts are indistinguishable here.
			h.metrics.refresh("unauthorized")
			h.auditRefreshFailed(r, "unauthorized")
			writeError(w, http.StatusUnauthorized, "unauthorized", "session is no longer usable")
		default:
			h.metrics.refresh("error")
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.refresh("ok")
	h.auditRefreshSuccess(r, issued.AccountID, issued.GrantID)

	// Cookie callers keep their cookie; the token does not rotate, so there
	// is nothing new to set. Body callers get the same refresh token back.
	writeJSON(w, http.StatusOK, refreshResponse{
		Tokens: toTokenResponse(issued, !fromCookie),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if cookieToken, ok := h.refreshTokenFromCookie(r); ok && refreshToken == "" {
		fromCookie = true
		refreshToken = cookieToken
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.svc.Logout(ctx, now, refreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.revoke("logout")
	h.auditLogout(r)
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.CurrentPassword) == "" || strings.TrimSpace(req.NewPassword) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "current_password and new_password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.svc.ChangePassword(ctx, now, claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, session.ErrCurrentPasswordInvalid):
			writeError(w, http.StatusBadRequest, "current_password_invalid", "current password is incorrect")
		case errors.Is(err, session.ErrAccountDisabled):
			writeError(w, http.StatusForbidden, "account_disabled", "account is disabled")
		case errors.Is(err, session.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		case isPasswordPolicyError(err):
			writeError(w, http.StatusBadRequest, "validation_error", policyMessage(err))
		default:
			h.log.Error("auth.change_password.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.revoke("password_change")
	h.auditPasswordChanged(r, claims.Subject)
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, "validation_error", "a valid email is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.svc.ForgotPassword(ctx, now, email, h.requestMeta(r)); err != nil {
		h.log.Error("auth.forgot_password.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.reset("requested")
	h.auditResetRequested(r, email)

	// Uniform response: existence of the account is never disclosed.
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "if that address is registered, a reset token has been sent",
	})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.NewPassword) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "token and new_password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.svc.ResetPassword(ctx, now, req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, session.ErrMissingToken):
			writeError(w, http.StatusBadRequest, "validation_error", "token is required")
		case errors.Is(err, session.ErrResetTokenUsed):
			writeError(w, http.StatusBadRequest, "reset_token_used", "reset token has already been used")
		case errors.Is(err, session.ErrResetTokenInvalid):
			writeError(w, http.StatusBadRequest, "reset_token_invalid", "reset token is invalid or expired")
		case isPasswordPolicyError(err):
			writeError(w, http.StatusBadRequest, "validation_error", policyMessage(err))
		default:
			h.log.Error("auth.reset_password.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.reset("completed")
	h.metrics.revoke("password_reset")
	h.auditResetCompleted(r)
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	acct, err := h.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if account.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Account: toAccountResponse(acct)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (jwt.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return jwt.AccessClaims{}, false
	}
	claims, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return jwt.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func validEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject the display-name form ("Name <a@b>"): only bare addresses.
	return addr.Address == s
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func isPasswordPolicyError(err error) bool {
	return errors.Is(err, password.ErrTooShort) ||
		errors.Is(err, password.ErrTooLong) ||
		errors.Is(err, password.ErrVeryWeak)
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrTooShort):
		return "password is too short"
	case errors.Is(err, password.ErrTooLong):
		return "password is too long"
	case errors.Is(err, password.ErrVeryWeak):
		return "password is too weak"
	default:
		return "password does not meet policy"
	}
}

// requestMeta captures the client context persisted with grants.
func (h *Handler) requestMeta(r *http.Request) session.Meta {
	m := session.Meta{UserAgent: trimmedUserAgent(r)}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		m.IP = ip.String()
	}
	return m
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if r == nil {
		return nil
	}
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

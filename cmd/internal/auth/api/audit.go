package authapi

import (
	"net/http"
	"strings"
)

// Audit events are structured log lines, not database rows. Operators that
// need durable audit trails ship the logs; the service itself stays out of
// the retention business.

func (h *Handler) auditLoginSuccess(r *http.Request, accountID, grantID, email string) {
	h.audit(r, "auth.login.success", "account_id", accountID, "grant_id", grantID, "email", email)
}

func (h *Handler) auditLoginFailed(r *http.Request, email, reason string) {
	h.audit(r, "auth.login.failed", "email", email, "reason", reason)
}

func (h *Handler) auditRegister(r *http.Request, accountID, email string) {
	h.audit(r, "auth.register", "account_id", accountID, "email", email)
}

func (h *Handler) auditRefreshSuccess(r *http.Request, accountID, grantID string) {
	h.audit(r, "auth.refresh.success", "account_id", accountID, "grant_id", grantID)
}

func (h *Handler) auditRefreshFailed(r *http.Request, reason string) {
	h.audit(r, "auth.refresh.failed", "reason", reason)
}

func (h *Handler) auditLogout(r *http.Request) {
	h.audit(r, "auth.logout")
}

func (h *Handler) auditPasswordChanged(r *http.Request, accountID string) {
	h.audit(r, "auth.password.changed", "account_id", accountID)
}

func (h *Handler) auditResetRequested(r *http.Request, email string) {
	h.audit(r, "auth.reset.requested", "email", email)
}

func (h *Handler) auditResetCompleted(r *http.Request) {
	h.audit(r, "auth.reset.completed")
}

func (h *Handler) audit(r *http.Request, action string, kv ...any) {
	if h == nil || h.log == nil {
		return
	}
	attrs := make([]any, 0, len(kv)+4)
	attrs = append(attrs, kv...)
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		attrs = append(attrs, "ip", ip.String())
	}
	if ua := trimmedUserAgent(r); ua != "" {
		attrs = append(attrs, "ua", ua)
	}
	h.log.Info(action, attrs...)
}

func trimmedUserAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get("User-Agent"))
}

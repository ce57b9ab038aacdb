package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/domain/shell"
	apperrors "github.com/gatehouse/gatehouse/internal/errors"
	"github.com/gatehouse/gatehouse/internal/service"
)

// AuthServiceInterface defines the auth operations the HTTP layer needs.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	ClientSession(ctx context.Context, clientID string) (*domainauth.Session, error)
	Refresh(ctx context.Context, clientID string) (*domainauth.Session, error)
	Logout(ctx context.Context, clientID string) error
}

// TokenVerifier decodes the access token attached to a session.
type TokenVerifier interface {
	Verify(token string) (domainauth.TokenClaims, error)
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

// AuthHandlers provides HTTP handlers for authentication operations. Sessions are
// bound to the browser client id, so no session cookie is ever issued.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Tokens       TokenVerifier // optional
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		writeLoginError(w, err, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("unable to start login"),
		})
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint. The new session is bound to the
// browser client, which announces the sign-in to every open view.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	input, problem := callbackInput(r)
	if problem != nil {
		WriteError(w, *problem)
		return
	}

	if _, err := h.Svc.CompleteLogin(r.Context(), input); err != nil {
		h.logger().ErrorContext(r.Context(), "complete login failed", "error", err)
		writeLoginError(w, err, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     errors.New("unable to complete login"),
		})
		return
	}

	h.clearCookie(w, r, oauthStateCookie)
	h.clearCookie(w, r, oauthNonceCookie)

	http.Redirect(w, r, h.getPostLoginRedirect(w, r), http.StatusFound)
}

// writeLoginError reports coded application errors (such as a missing identity
// provider) with their own status and everything else as fallback.
func writeLoginError(w http.ResponseWriter, err error, fallback ErrorParams) {
	if apperrors.GetCode(err) != "" {
		WriteAppError(w, err)
		return
	}
	WriteError(w, fallback)
}

// callbackInput checks the query against the cookies set by Login.
func callbackInput(r *http.Request) (service.CompleteLoginInput, *ErrorParams) {
	bad := func(code, msg string) *ErrorParams {
		return &ErrorParams{Code: http.StatusBadRequest, ErrCode: code, Err: errors.New(msg)}
	}
	q := r.URL.Query()
	in := service.CompleteLoginInput{
		Code:     q.Get("code"),
		State:    q.Get("state"),
		ClientID: ClientID(r.Context()),
	}
	switch {
	case in.Code == "":
		return in, bad("missing_code", "authorization code is required")
	case in.State == "":
		return in, bad("missing_state", "state parameter is required")
	}
	if c, err := r.Cookie(oauthStateCookie); err != nil || c.Value != in.State {
		return in, bad("invalid_state", "invalid or missing state parameter")
	}
	c, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		return in, bad("missing_nonce", "missing nonce parameter")
	}
	in.Nonce = c.Value
	return in, nil
}

// Logout ends the browser client's session. Open views switch to the sign-in page
// through the change feed.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Logout(r.Context(), ClientID(r.Context())); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}

	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		redirectURI = r.URL.Query().Get("redirect_uri")
	}
	redirectURI = safeRedirectPath(redirectURI)

	u := url.URL{Path: "/auth/signed-out"}
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	u.RawQuery = q.Encode()
	signedOutURL := u.String()

	if WantsJSON(r) {
		if IsHTMX(r) {
			SetHXRedirect(w, signedOutURL)
		}
		triggerToast(w, shell.Notice{Level: shell.NoticeInfo, Title: "Signed out", Message: "You have been signed out."})
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": signedOutURL,
		})
		return
	}

	http.Redirect(w, r, signedOutURL, http.StatusFound)
}

// Refresh re-issues the client's session and access token.
// POST /auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Refresh(r.Context(), ClientID(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthorized", Err: err})
			return
		}
		h.logger().ErrorContext(r.Context(), "session refresh failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "refresh_failed",
			Err:     errors.New("unable to refresh session"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"expires_at": sess.ExpiresAt,
	})
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	session, err := h.Svc.ClientSession(r.Context(), ClientID(r.Context()))
	if err != nil {
		h.logger().WarnContext(r.Context(), "session lookup failed", "error", err)
	}
	if err != nil || session == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	body := map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":         session.UserID,
			"first_name": session.FirstName,
			"last_name":  session.LastName,
			"email":      session.Email,
			"role":       session.Role,
		},
		"expires_at": session.ExpiresAt,
	}
	if h.Tokens != nil && session.AccessToken != "" {
		if claims, verifyErr := h.Tokens.Verify(session.AccessToken); verifyErr == nil {
			body["token"] = map[string]any{
				"subject":    claims.Subject,
				"session_id": claims.SessionID,
				"issued_at":  claims.IssuedAt,
				"expires_at": claims.ExpiresAt,
			}
		} else {
			h.logger().WarnContext(r.Context(), "access token failed verification", "error", verifyErr)
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors the attributes used when setting cookies so browsers match it.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// oauthCookieParams groups values needed to set OAuth cookies.
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in short-lived cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	secure := isSecureRequest(r)
	for name, value := range map[string]string{
		oauthStateCookie: p.State,
		oauthNonceCookie: p.Nonce,
		postLoginCookie:  p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieMaxAge,
		})
	}
}

// getPostLoginRedirect returns the post-login redirect URL and clears the cookie.
func (h *AuthHandlers) getPostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(postLoginCookie)
	if err != nil {
		return "/"
	}
	h.clearCookie(w, r, postLoginCookie)
	return safeRedirectPath(c.Value)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}

package httpx

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/domain/shell"
	"github.com/gatehouse/gatehouse/internal/http/ui/viewmodel"
	"github.com/gatehouse/gatehouse/internal/service"
)

const (
	defaultReadyWait = 250 * time.Millisecond
	defaultKeepAlive = 25 * time.Second
	appTitle         = "Gatehouse"
)

// ViewStore owns the mounted views served to browsers.
type ViewStore interface {
	Mount(ctx context.Context, clientID string) (string, *shell.Router, error)
	Get(id string) (*shell.Router, bool)
	Owner(id string) (string, bool)
	Unmount(id string) bool
}

// ActivityReader lists a user's recent auth events.
type ActivityReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]domainauth.AuthEvent, error)
}

// Compile-time interface assertions.
var _ ViewStore = (*service.ViewRegistry)(nil)

// UIHandlers serves browser-facing routes.
type UIHandlers struct {
	T     *TemplateRenderer
	Views ViewStore

	// Journal feeds the dashboard's recent activity list. Optional.
	Journal ActivityReader

	// ProviderLogoutURL is offered on the signed-out page when the identity provider has one.
	ProviderLogoutURL string

	// ReadyWait bounds how long the first paint waits for the initial session lookup.
	ReadyWait time.Duration
	// KeepAlive is the interval between SSE keep-alive comments.
	KeepAlive time.Duration

	IsDev  bool // Development mode flag for enhanced error reporting
	Logger *slog.Logger
}

// logger returns the configured logger or falls back to slog.Default().
func (h *UIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *UIHandlers) readyWait() time.Duration {
	if h.ReadyWait > 0 {
		return h.ReadyWait
	}
	return defaultReadyWait
}

func (h *UIHandlers) keepAlive() time.Duration {
	if h.KeepAlive > 0 {
		return h.KeepAlive
	}
	return defaultKeepAlive
}

// buildLayout constructs shared layout metadata from the request.
func (h *UIHandlers) buildLayout(r *http.Request, title string) viewmodel.Layout {
	if title == "" {
		title = appTitle
	} else {
		title += " - " + appTitle
	}
	return viewmodel.Layout{
		Title:     title,
		CSRFToken: GetCSRFToken(r),
		IsDev:     h.IsDev,
	}
}

// SignedOut renders the signed-out confirmation page.
func (h *UIHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	data := viewmodel.SignedOut{
		Layout:            h.buildLayout(r, "Signed out"),
		RedirectURI:       safeRedirectPath(r.URL.Query().Get("redirect_uri")),
		ProviderLogoutURL: h.ProviderLogoutURL,
	}
	if err := h.T.Render(w, "signed-out-page", data); err != nil {
		h.logAndRenderTemplateError(w, r, err, "signed-out page")
	}
}

// NotFound renders an HTML 404 for browsers and a JSON error for API callers.
func (h *UIHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) || h == nil || h.T == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("not found"),
		})
		return
	}
	data := viewmodel.NotFound{
		Layout: h.buildLayout(r, "Page not found"),
		Path:   r.URL.Path,
	}
	if err := h.T.RenderStatus(w, http.StatusNotFound, "not-found-page", data); err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
	}
}

// logAndRenderTemplateError logs template errors and renders them in dev mode.
func (h *UIHandlers) logAndRenderTemplateError(w http.ResponseWriter, r *http.Request, err error, context string) {
	h.logger().Error("template rendering failed",
		"error", err,
		"context", context,
		"path", r.URL.Path,
		"method", r.Method,
	)

	if h.IsDev {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		body := `<div class="dev-error"><h2>Template Rendering Error</h2>` +
			`<p><strong>Context:</strong> ` + html.EscapeString(context) + `</p>` +
			`<p><strong>Path:</strong> ` + html.EscapeString(r.URL.Path) + `</p>` +
			`<pre>` + html.EscapeString(err.Error()) + `</pre></div>`
		if _, writeErr := w.Write([]byte(body)); writeErr != nil {
			h.logger().Error("failed to write template error response", "error", writeErr)
		}
		return
	}

	http.Error(w, "internal server error", http.StatusInternalServerError)
}

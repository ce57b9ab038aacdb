package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"time"

	gatehouse "github.com/gatehouse/gatehouse"
)

// RouterServices holds the dependencies for the HTTP router.
type RouterServices struct {
	Auth   AuthServiceInterface // nil disables the /auth endpoints
	Tokens TokenVerifier        // optional; adds token claims to /auth/status

	Views   ViewStore
	Journal ActivityReader // optional

	HealthChecks []HealthCheck

	CookieDomain      string
	ProviderLogoutURL string

	ReadyWait time.Duration
	KeepAlive time.Duration

	CompressionEnabled bool
	CompressionLevel   int

	// Templates and Static override the embedded assets. Tests use them.
	Templates fs.FS
	Static    fs.FS

	IsDev  bool         // Development mode flag for hot reloading, etc.
	Logger *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter builds the application's HTTP handler.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templateFS, staticFS, err := resolveAssets(services)
	if err != nil {
		return nil, err
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS,
		DevMode:    services.IsDev,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	ui := &UIHandlers{
		T:                 tr,
		Views:             services.Views,
		Journal:           services.Journal,
		ProviderLogoutURL: services.ProviderLogoutURL,
		ReadyWait:         services.ReadyWait,
		KeepAlive:         services.KeepAlive,
		IsDev:             services.IsDev,
		Logger:            logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET /readyz", readinessHandler(services.HealthChecks, 0))
	mux.Handle("GET /static/", staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))))

	registerViewRoutes(mux, ui)
	if services.Auth != nil {
		registerAuthRoutes(mux, &AuthHandlers{
			Svc:          services.Auth,
			Tokens:       services.Tokens,
			CookieDomain: services.CookieDomain,
			Logger:       logger,
		})
	}
	mux.HandleFunc("GET /auth/signed-out", ui.SignedOut)

	var handler http.Handler = &notFoundHandler{mux: mux, ui: ui}
	handler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(handler)
	handler = ClientIdentity(services.CookieDomain)(handler)
	if services.CompressionEnabled {
		handler = Compression(CompressionConfig{Level: services.CompressionLevel, MinSize: 1024, Logger: logger})(handler)
	}
	handler = Logging(logger)(handler)
	return Recover(logger)(handler), nil
}

func registerViewRoutes(mux *http.ServeMux, h *UIHandlers) {
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /views/{id}", h.ViewFragment)
	mux.HandleFunc("GET /views/{id}/stream", h.Stream)
	mux.HandleFunc("POST /views/{id}/navigate", h.Navigate)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("GET /auth/status", h.Status)
}

// resolveAssets picks the template and static filesystems. Dev mode reads from disk
// for hot reloading; production serves the embedded copies.
func resolveAssets(services RouterServices) (fs.FS, fs.FS, error) {
	templateFS, staticFS := services.Templates, services.Static
	if services.IsDev {
		if templateFS == nil {
			templateFS = os.DirFS(TemplatePathFromRoot)
		}
		if staticFS == nil {
			staticFS = os.DirFS(StaticPathFromRoot)
		}
		return templateFS, staticFS, nil
	}

	if templateFS == nil {
		sub, err := fs.Sub(gatehouse.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			return nil, nil, err
		}
		templateFS = sub
	}
	if staticFS == nil {
		sub, err := fs.Sub(gatehouse.StaticFS, StaticPathFromRoot)
		if err != nil {
			return nil, nil, err
		}
		staticFS = sub
	}
	return templateFS, staticFS, nil
}

//nolint:gochecknoglobals // compiled once
var hashedFilePattern = regexp.MustCompile(`\.[a-f0-9]{8}\.(?:js|css)(?:\.map)?$`)

// staticWithCacheHeaders wraps a static file handler to add appropriate cache headers.
func staticWithCacheHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hashedFilePattern.MatchString(r.URL.Path) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}
		handler.ServeHTTP(w, r)
	})
}

// notFoundHandler renders the UI 404 page for requests no route matches.
// Missing static files keep the file server's plain response.
type notFoundHandler struct {
	mux *http.ServeMux
	ui  *UIHandlers
}

func (h *notFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, pattern := h.mux.Handler(r); pattern == "" {
		h.ui.NotFound(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

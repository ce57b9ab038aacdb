package httpx

import "github.com/gatehouse/gatehouse/internal/domain/shell"

// Cookie names.
const (
	// ClientCookieName identifies the browser client a view and its session belong to.
	ClientCookieName = "gh_client"

	oauthStateCookie   = "oauth_state"
	oauthNonceCookie   = "oauth_nonce"
	postLoginCookie    = "post_login_redirect"
	oauthCookieMaxAge  = 600
	clientCookieMaxAge = 400 * 24 * 60 * 60
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "frontend/templates"       // From project root
	TemplatePathFromTest = "../../frontend/templates" // From internal/http test files
	StaticPathFromRoot   = "frontend/static"
)

// SSE event names.
const (
	eventView   = "view"
	eventNotice = "notice"
)

// recentActivityLimit is how many journal entries the dashboard lists.
const recentActivityLimit = 10

//nolint:gochecknoglobals // static read-only lookup for templates
var branchTemplates = map[shell.Branch]string{
	shell.BranchLoading:   "loading-content",
	shell.BranchSignIn:    "signin-content",
	shell.BranchHome:      "home-content",
	shell.BranchDashboard: "dashboard-content",
}

// BranchTemplateFor returns the content template for a render branch.
// Unknown branches fall back to the loading screen.
func BranchTemplateFor(b shell.Branch) string {
	if name, ok := branchTemplates[b]; ok {
		return name
	}
	return "loading-content"
}

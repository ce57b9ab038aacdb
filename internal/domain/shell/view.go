// Package shell holds the session-gated view router: the state that decides whether a
// browser view shows the loading screen, the sign-in page or one of the signed-in pages.
package shell

import (
	"errors"
	"fmt"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
)

// Page selects which signed-in page is shown.
type Page string

const (
	PageHome      Page = "home"
	PageDashboard Page = "dashboard"
)

// ErrInvalidPage is returned when a page outside the known set is requested.
var ErrInvalidPage = errors.New("invalid page")

// Valid reports whether p is a known page.
func (p Page) Valid() bool {
	return p == PageHome || p == PageDashboard
}

// ParsePage converts s into a Page.
func ParsePage(s string) (Page, error) {
	p := Page(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPage, s)
	}
	return p, nil
}

// Branch is the rendered branch of a view. Exactly one is active at a time.
type Branch string

const (
	BranchLoading   Branch = "loading"
	BranchSignIn    Branch = "signin"
	BranchHome      Branch = "home"
	BranchDashboard Branch = "dashboard"
)

// Authenticated reports whether the branch shows a signed-in page.
func (b Branch) Authenticated() bool {
	return b == BranchHome || b == BranchDashboard
}

// Select maps router state onto the branch to render.
func Select(loading bool, user *domainauth.User, page Page) Branch {
	switch {
	case loading:
		return BranchLoading
	case user == nil:
		return BranchSignIn
	case page == PageDashboard:
		return BranchDashboard
	default:
		return BranchHome
	}
}

// View is a snapshot of what a router currently renders.
type View struct {
	Branch   Branch
	User     *domainauth.User
	Page     Page
	Revision uint64
}

// NoticeLevel classifies a toast notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the toast region of a view.
type Notice struct {
	Level   NoticeLevel
	Title   string
	Message string
	At      time.Time
}

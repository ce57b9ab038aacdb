// Package viewmodel holds the data handed to gatehouse templates.
package viewmodel

import (
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/domain/shell"
)

// Layout captures shared chrome metadata.
type Layout struct {
	Title     string
	CSRFToken string
	IsDev     bool
}

// ViewPage is the data for a mounted view: the whole page on first paint and the
// branch fragment afterwards.
type ViewPage struct {
	Layout
	ViewID string
	View   shell.View

	// Activity lists the user's recent auth events on the dashboard.
	Activity            []domainauth.AuthEvent
	ActivityUnavailable bool
}

// Signed reports whether the view currently shows a signed-in page.
func (p ViewPage) Signed() bool { return p.View.Branch.Authenticated() }

// SignedOut is the data for the signed-out confirmation page.
type SignedOut struct {
	Layout
	RedirectURI       string
	ProviderLogoutURL string
}

// NotFound is the data for the 404 page.
type NotFound struct {
	Layout
	Path string
}

// Package core holds the template helpers shared by every gatehouse template.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/domain/shell"
)

// Deps holds the dependencies for constructing the core template func map.
type Deps struct {
	Template          **template.Template
	BranchTemplateFor func(shell.Branch) string
}

// Funcs returns a template.FuncMap containing helpers that are broadly useful across templates.
func Funcs(deps Deps) template.FuncMap {
	funcs := template.FuncMap{
		"branchTmpl":   deps.BranchTemplateFor,
		"timeTag":      timeTag,
		"since":        func(t time.Time) string { return Since(t, time.Now()) },
		"noticeClass":  NoticeClass,
		"kindLabel":    KindLabel,
		"initials":     Initials,
	}

	funcs["renderBranch"] = func(b shell.Branch, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.BranchTemplateFor(b), data); err != nil {
			return "", err
		}
		// #nosec G203 - rendered by our own html/template set; values were escaped during execution.
		return template.HTML(buf.String()), nil
	}

	funcs["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return funcs
}

// Since renders the age of t relative to now in coarse units. Anything older
// than a week falls back to a calendar date.
func Since(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return plural(int(age/time.Minute), "minute")
	case age < 24*time.Hour:
		return plural(int(age/time.Hour), "hour")
	case age < 7*24*time.Hour:
		return plural(int(age/(24*time.Hour)), "day")
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func timeTag(t time.Time) template.HTML {
	if t.IsZero() {
		return ""
	}
	// #nosec G203 - constructed from escaped values only
	return template.HTML(fmt.Sprintf(
		`<time datetime="%s" title="%s">%s</time>`,
		t.UTC().Format(time.RFC3339),
		template.HTMLEscapeString(t.Local().Format(time.RFC1123)),
		template.HTMLEscapeString(Since(t, time.Now())),
	))
}

// NoticeClass maps a notice level to its toast CSS class.
func NoticeClass(level shell.NoticeLevel) string {
	switch level {
	case shell.NoticeSuccess:
		return "toast-success"
	case shell.NoticeWarning:
		return "toast-warning"
	case shell.NoticeError:
		return "toast-error"
	default:
		return "toast-info"
	}
}

// KindLabel is the human label for a journaled change kind.
func KindLabel(kind domainauth.ChangeKind) string {
	switch kind {
	case domainauth.ChangeInitialSession:
		return "Session restored"
	case domainauth.ChangeSignedIn:
		return "Signed in"
	case domainauth.ChangeSignedOut:
		return "Signed out"
	case domainauth.ChangeTokenRefreshed:
		return "Session refreshed"
	case domainauth.ChangeUserUpdated:
		return "Profile updated"
	default:
		return string(kind)
	}
}

// Initials returns up to two upper-case initials for an avatar badge.
func Initials(u *domainauth.User) string {
	if u == nil {
		return ""
	}
	var out []rune
	for _, part := range strings.Fields(u.DisplayName()) {
		for _, r := range part {
			out = append(out, r)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}

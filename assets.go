// Package gatehouse embeds the frontend bundle so release binaries need no files on disk.
// Dev mode reads frontend/ from the working directory instead.
package gatehouse

import "embed"

// StaticFS holds the CSS, JS and image assets served under /static/.
//
//go:embed all:frontend/static
var StaticFS embed.FS

// TemplateFS holds the layout, page and partial templates.
//
//go:embed all:frontend/templates
var TemplateFS embed.FS

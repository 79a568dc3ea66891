// Package web embeds the viewer page, its fragments and static assets.
package web

import "embed"

// FS holds templates/ and static/.
//
//go:embed templates static
var FS embed.FS

// Template patterns for templates.New.
var Patterns = []string{"templates/*.html", "templates/fragments/*.html"}

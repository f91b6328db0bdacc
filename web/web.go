// Package web carries the embedded HTML templates for the server-rendered UI.
package web

import "embed"

//go:embed templates/*.html
var TemplatesFS embed.FS

// Package assets embeds the operator-facing static assets (the status page
// template) so the binary serves them without an external assets
// directory. An operator can still layer extra files on top via -static-dir.
package assets

import (
	"embed"
	"html/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// StatusTemplate is the parsed operator status page template, rendered
// with a StatusData value.
var StatusTemplate = template.Must(template.ParseFS(templatesFS, "templates/status.html.tmpl"))

// StatusData is the view model handed to StatusTemplate.
type StatusData struct {
	Sessions         int
	Uptime           string
	ClientAttaches   int64
	BrowserAttaches  int64
	TokensIssued     int64
	AuditSubscribers int
}

// Package appfs exposes files embedded in the binary: database migrations
// and email templates.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS

//go:embed templates
var Templates embed.FS

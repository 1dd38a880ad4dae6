// Package schemas holds the JSON Schema documents that structured capability answers are validated against.
package schemas

import "embed"

// FS contains every *.schema.json document in this directory.
//
//go:embed *.schema.json
var FS embed.FS

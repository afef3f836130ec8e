// Package web embeds the static chat page.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte

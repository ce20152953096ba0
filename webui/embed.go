// Package webui exposes the embedded browser client.
// It lives at the module root so it can embed the sibling "web/" directory.
// Vendored UI units under web/vendor are materialized at runtime by
// "sharedshape extern update" and are served from disk, not embedded.
package webui

import "embed"

// FS holds the application shell (web/index.html, web/app.js, web/app.css).
//
//go:embed web/*.html web/*.js web/*.css
var FS embed.FS

package spacetraveling

import "embed"

// EmbeddedAssets contains the static assets served under /public/:
// styles.css, loadmore.js, logo.svg and the icon set, plus robots.txt.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS

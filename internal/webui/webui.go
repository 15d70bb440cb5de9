// Package webui provides the embedded leaderboard page served next to the
// results API.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	return http.FS(Static())
}

// Static returns the embedded files rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// This should never happen because we control the embed path
		panic(err)
	}
	return sub
}

// Index returns the leaderboard page.
func Index() []byte {
	data, err := fs.ReadFile(Static(), "index.html")
	if err != nil {
		panic(err)
	}
	return data
}

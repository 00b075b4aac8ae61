// Package assets embeds the browser client: the sandbox shell page, its
// JavaScript and its stylesheet.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the sandbox client script
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/sandbox.js")
}

// GetClientCSS returns the sandbox stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/sandbox.css")
}

// GetShellTemplate returns the html/template source of the sandbox page
func GetShellTemplate() ([]byte, error) {
	return clientFS.ReadFile("client/shell.html")
}

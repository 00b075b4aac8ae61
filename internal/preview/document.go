// Package preview turns sandbox state into the document shown in the
// preview frame, and keeps it current as render signals arrive.
package preview

import (
	"html"
	"log"
	"strings"

	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/security"
	"github.com/livetemplate/sandbox/internal/store"
)

// Box types with a fixed place in the document. Every other box is embedded
// as an inert script block for client-side transformers to pick up.
const (
	BoxHTML demo.BoxType = "html"
	BoxCSS  demo.BoxType = "css"
	BoxJS   demo.BoxType = "js"
)

// Build renders the preview document for s.
//
// Dependencies load before any box: css packages as <link> in the head,
// js packages as <script src> ahead of the js box, both in list order.
// Dependency URLs that are not http(s) or paths are left out.
func Build(s store.State) string {
	var b strings.Builder
	css := packageURLs(s.Dependencies.CSS)
	js := packageURLs(s.Dependencies.JS)

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if title := documentTitle(s); title != "" {
		b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	}
	for _, href := range css {
		b.WriteString(`<link rel="stylesheet" href="` + html.EscapeString(href) + "\">\n")
	}
	if box, ok := s.Boxes[BoxCSS]; ok {
		b.WriteString("<style>\n" + escapeRawText(box.Code, "style") + "\n</style>\n")
	}
	b.WriteString("</head>\n<body>\n")

	if box, ok := s.Boxes[BoxHTML]; ok {
		b.WriteString(box.Code)
		b.WriteString("\n")
	}
	for _, src := range js {
		b.WriteString(`<script src="` + html.EscapeString(src) + "\"></script>\n")
	}

	for _, e := range s.OrderedBoxes() {
		switch e.Type {
		case BoxHTML, BoxCSS, BoxJS:
			continue
		}
		b.WriteString(`<script type="text/plain" data-box="` + html.EscapeString(string(e.Type)) + `"`)
		if e.Box.Transformer != "" {
			b.WriteString(` data-transformer="` + html.EscapeString(e.Box.Transformer) + `"`)
		}
		b.WriteString(">\n" + escapeRawText(e.Box.Code, "script") + "\n</script>\n")
	}

	if box, ok := s.Boxes[BoxJS]; ok {
		b.WriteString("<script")
		if box.Transformer != "" {
			b.WriteString(` type="text/plain" data-box="js" data-transformer="` + html.EscapeString(box.Transformer) + `"`)
		}
		b.WriteString(">\n" + escapeRawText(box.Code, "script") + "\n</script>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func packageURLs(list []string) []string {
	valid, rejected := security.FilterPackageURLs(list)
	for u, err := range rejected {
		log.Printf("[Preview] Skipping dependency %q: %v", u, err)
	}
	return valid
}

func documentTitle(s store.State) string {
	for _, l := range s.Links {
		if l.Name == s.Demo && l.Title != "" {
			return l.Title
		}
	}
	return s.Demo
}

// escapeRawText keeps box code from closing the element it is embedded in.
// The closing tag is ASCII, so matching folds case on the raw bytes and
// leaves every other byte of code untouched.
func escapeRawText(code, tag string) string {
	closing := "</" + tag
	var b strings.Builder
	start := 0
	for i := 0; i+len(closing) <= len(code); i++ {
		if code[i] != '<' || !strings.EqualFold(code[i:i+len(closing)], closing) {
			continue
		}
		if b.Len() == 0 {
			b.Grow(len(code) + 8)
		}
		b.WriteString(code[start:i])
		b.WriteString(`<\/`)
		b.WriteString(code[i+2 : i+len(closing)])
		start = i + len(closing)
		i = start - 1
	}
	if start == 0 {
		return code
	}
	b.WriteString(code[start:])
	return b.String()
}

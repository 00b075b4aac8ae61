package demo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a markdown demo.
type Frontmatter struct {
	FoldBoxes    []string  `yaml:"foldBoxes"`
	VisibleBoxes []string  `yaml:"visibleBoxes"`
	Packages     *Packages `yaml:"packages"`
}

// ParseMarkdown builds a demo from a markdown document. Each fenced code
// block with an info string becomes a box: the first word is the box type,
// and "transformer=<name>" sets the box transformer.
//
//	```js transformer=babel
//	console.log(1)
//	```
//
// Prose and unlabelled code blocks are ignored.
func ParseMarkdown(content []byte) (*Definition, error) {
	fm, remaining, err := extractFrontmatter(content)
	if err != nil {
		return nil, &ShapeError{Reason: fmt.Sprintf("frontmatter: %v", err)}
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(remaining))

	def := &Definition{Packages: fm.Packages}
	if def.FoldBoxes, err = toTypes(KeyFoldBoxes, fm.FoldBoxes); err != nil {
		return nil, err
	}
	if def.VisibleBoxes, err = toTypes(KeyVisibleBoxes, fm.VisibleBoxes); err != nil {
		return nil, err
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		entry, ok, err := parseFencedBox(fenced, remaining)
		if err != nil {
			return ast.WalkStop, err
		}
		if !ok {
			return ast.WalkContinue, nil
		}
		if _, dup := def.Box(entry.Type); dup {
			return ast.WalkStop, &ShapeError{Key: string(entry.Type), Reason: "duplicate box"}
		}
		def.Boxes = append(def.Boxes, entry)
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func parseFencedBox(fenced *ast.FencedCodeBlock, source []byte) (BoxEntry, bool, error) {
	if fenced.Info == nil {
		return BoxEntry{}, false, nil
	}
	parts := strings.Fields(string(fenced.Info.Text(source)))
	if len(parts) == 0 {
		return BoxEntry{}, false, nil
	}

	t, err := ParseBoxType(parts[0])
	if err != nil {
		return BoxEntry{}, false, &ShapeError{Key: parts[0], Reason: err.Error()}
	}

	var box Box
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && kv[0] == "transformer" {
			box.Transformer = strings.Trim(kv[1], `"'`)
		}
	}

	var buf bytes.Buffer
	lines := fenced.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	box.Code = buf.String()

	return BoxEntry{Type: t, Box: box}, true, nil
}

// extractFrontmatter splits a leading "---" YAML block from content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unclosed frontmatter")
	}

	yamlContent := content[4 : 4+endIdx]
	remaining := content[4+endIdx+5:]

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, nil, err
	}
	return &fm, remaining, nil
}

package drift

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"docdrift/internal/errors"
)

var (
	operationHeading = regexp.MustCompile(`(?i)^\s*` + "`?" + `(GET|PUT|POST|DELETE|PATCH|HEAD|OPTIONS|TRACE)\s+(/\S*?)` + "`?" + `\s*$`)
	statedVersion    = regexp.MustCompile(`(?i)\bversion\b\s*[:=]?\s*v?(\d+(?:\.\d+)*(?:[-+][0-9A-Za-z.]+)?)`)
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// LoadDoc reads documentation from path: Markdown for .md/.markdown files,
// otherwise a native {stated_version, endpoint_sections} YAML or JSON document.
func LoadDoc(path string) (*DocArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read doc: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		doc := ParseMarkdownDoc(data)
		doc.URL = path
		return doc, nil
	}
	return ParseNativeDoc(data)
}

// ParseNativeDoc decodes a {stated_version, endpoint_sections} YAML or JSON document.
func ParseNativeDoc(data []byte) (*DocArtifact, error) {
	var doc DocArtifact
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.MalformedSpecOrDoc, "doc does not match the native format", err)
	}
	return &doc, nil
}

// ParseMarkdownDoc extracts operation sections from Markdown. A heading of
// the form "POST /payments/charge" opens a section; the first GFM table
// under it lists the parameters. The stated version is the first
// "Version: x.y" found in a heading or paragraph.
func ParseMarkdownDoc(src []byte) *DocArtifact {
	doc := &DocArtifact{}
	root := markdown.Parser().Parse(text.NewReader(src))

	var current *DocSection
	tableSeen := false
	flush := func() {
		if current != nil {
			doc.Sections = append(doc.Sections, *current)
			current = nil
		}
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := inlineText(node, src)
			if m := operationHeading.FindStringSubmatch(title); m != nil {
				flush()
				current = &DocSection{Method: strings.ToUpper(m[1]), Path: m[2], Params: []Param{}}
				tableSeen = false
			} else if current != nil && node.Level <= 2 {
				flush()
			}
			doc.noteVersion(title)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			doc.noteVersion(inlineText(node, src))
			return ast.WalkSkipChildren, nil
		case *east.Table:
			if current != nil && !tableSeen {
				current.Params = append(current.Params, tableParams(node, src)...)
				tableSeen = true
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	flush()
	return doc
}

func (d *DocArtifact) noteVersion(s string) {
	if d.StatedVersion != "" {
		return
	}
	if m := statedVersion.FindStringSubmatch(s); m != nil {
		d.StatedVersion = m[1]
	}
}

// tableParams maps a parameter table to params by header name.
func tableParams(table *east.Table, src []byte) []Param {
	cols := map[string]int{}
	var rows [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
		}
		if _, ok := row.(*east.TableHeader); ok {
			for i, h := range cells {
				if col := headerColumn(h); col != "" {
					if _, dup := cols[col]; !dup {
						cols[col] = i
					}
				}
			}
			continue
		}
		rows = append(rows, cells)
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil
	}

	cell := func(cells []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(cells) {
			return ""
		}
		return cells[i]
	}
	var out []Param
	for _, cells := range rows {
		if nameCol >= len(cells) {
			continue
		}
		name := strings.Trim(cells[nameCol], "`* ")
		if name == "" {
			continue
		}
		out = append(out, Param{
			Name:        name,
			In:          strings.ToLower(cell(cells, "in")),
			Type:        strings.Trim(cell(cells, "type"), "` "),
			Required:    truthy(cell(cells, "required")),
			Description: cell(cells, "description"),
		})
	}
	return out
}

func headerColumn(h string) string {
	switch strings.ToLower(strings.Trim(h, "`* ")) {
	case "name", "param", "parameter", "field", "header":
		return "name"
	case "type", "format":
		return "type"
	case "required", "req", "required?":
		return "required"
	case "description", "desc", "notes":
		return "description"
	case "in", "location":
		return "in"
	}
	return ""
}

func truthy(s string) bool {
	switch strings.ToLower(strings.Trim(s, "`*_ ")) {
	case "yes", "y", "true", "required", "x", "✓", "✔", "✅":
		return true
	}
	return false
}

// inlineText concatenates the text under n.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

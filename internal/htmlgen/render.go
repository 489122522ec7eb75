// Package htmlgen renders the HTML entry page and injects asset references.
package htmlgen

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultTemplate is used when no template file is configured.
const DefaultTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<div id="app"></div>
</body>
</html>
`

// Inject controls where script tags go. Stylesheets always go to head.
type Inject string

const (
	InjectBody Inject = "body"
	InjectHead Inject = "head"
	InjectNone Inject = "false"
)

// Refs are the references a page needs. Scripts and Styles are public refs
// from the manifest in the order they should appear.
type Refs struct {
	Title   string
	Scripts []string
	Styles  []string
	Inject  Inject
	Mode    string
	Env     map[string]string
}

// Renderer is the template capability.
type Renderer interface {
	Render(tmpl string, refs Refs) (string, error)
}

// TemplateRenderer executes html/template sources and injects references
// with golang.org/x/net/html.
type TemplateRenderer struct{}

// Render executes tmpl with refs as data, then injects <link> and <script>
// elements. Templates can reference .Title, .Scripts, .Styles, .Mode and .Env.
func (TemplateRenderer) Render(tmpl string, refs Refs) (string, error) {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	if refs.Env == nil {
		refs.Env = map[string]string{}
	}
	tpl, err := template.New("index").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	data := map[string]any{
		"Title":   refs.Title,
		"Scripts": refs.Scripts,
		"Styles":  refs.Styles,
		"Mode":    refs.Mode,
		"Env":     refs.Env,
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	if refs.Inject == InjectNone {
		return buf.String(), nil
	}
	return inject(buf.String(), refs)
}

func inject(page string, refs Refs) (string, error) {
	scriptsIn := atom.Body
	if refs.Inject == InjectHead {
		scriptsIn = atom.Head
	}
	// The parser synthesizes head and body, so a fragment template would
	// silently gain a document around it.
	tags := startTags(page)
	if len(refs.Styles) > 0 && !tags[atom.Head] {
		return "", fmt.Errorf("template has no <head> element for stylesheets")
	}
	if len(refs.Scripts) > 0 && !tags[scriptsIn] {
		return "", fmt.Errorf("template has no <%s> element for scripts", scriptsIn)
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse rendered html: %w", err)
	}
	head := find(doc, atom.Head)
	body := find(doc, atom.Body)

	present := existingRefs(doc)
	for _, href := range refs.Styles {
		if present[href] {
			continue
		}
		head.AppendChild(element(atom.Link, []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		}))
	}
	target := body
	attrs := func(src string) []html.Attribute { return []html.Attribute{{Key: "src", Val: src}} }
	if scriptsIn == atom.Head {
		target = head
		attrs = func(src string) []html.Attribute {
			return []html.Attribute{{Key: "defer"}, {Key: "src", Val: src}}
		}
	}
	for _, src := range refs.Scripts {
		if present[src] {
			continue
		}
		target.AppendChild(element(atom.Script, attrs(src)))
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	out.WriteByte('\n')
	return out.String(), nil
}

func element(a atom.Atom, attrs []html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

// existingRefs collects src/href values already present so templates that
// place references themselves do not get duplicates.
func existingRefs(n *html.Node) map[string]bool {
	refs := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Link) {
			for _, a := range n.Attr {
				if a.Key == "src" || a.Key == "href" {
					refs[a.Val] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return refs
}

// startTags lists the elements page opens explicitly.
func startTags(page string) map[atom.Atom]bool {
	seen := map[atom.Atom]bool{}
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return seen
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			seen[atom.Lookup(name)] = true
		}
	}
}

// Package discovery walks the module graph reachable from the entry module.
package discovery

import (
	"path"
	"strings"
)

// Type is the detected kind of a module.
type Type string

const (
	TypeScript   Type = "js"
	TypeStyle    Type = "css"
	TypeImage    Type = "image"
	TypeFont     Type = "font"
	TypeMarkdown Type = "markdown"
	TypeOther    Type = "other"
)

var typesByExt = map[string]Type{
	".js": TypeScript, ".mjs": TypeScript, ".cjs": TypeScript, ".jsx": TypeScript,
	".ts": TypeScript, ".tsx": TypeScript,
	".css": TypeStyle, ".styl": TypeStyle, ".scss": TypeStyle, ".less": TypeStyle,
	".png": TypeImage, ".jpg": TypeImage, ".jpeg": TypeImage, ".gif": TypeImage,
	".svg": TypeImage, ".webp": TypeImage, ".ico": TypeImage,
	".woff": TypeFont, ".woff2": TypeFont, ".ttf": TypeFont, ".otf": TypeFont, ".eot": TypeFont,
	".md": TypeMarkdown, ".markdown": TypeMarkdown,
}

// DetectType classifies a path by extension.
func DetectType(p string) Type {
	if t, ok := typesByExt[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return TypeOther
}

// ImportKind records the syntax an import was found in.
type ImportKind string

const (
	ImportESM       ImportKind = "import"
	ImportRequire   ImportKind = "require"
	ImportDynamic   ImportKind = "dynamic-import"
	ImportCSSImport ImportKind = "css-import"
	ImportURL       ImportKind = "url"
)

// Import is one resolved dependency edge.
type Import struct {
	Specifier string
	ID        string
	Kind      ImportKind
}

// Module is a source file reachable from the entry. It is immutable once read.
type Module struct {
	Path    string // absolute filesystem path
	ID      string // source-root relative, slash separated, NFC
	Type    Type
	Content []byte
	Imports []Import
}

// ImportID returns the resolved module ID for a specifier.
func (m *Module) ImportID(specifier string) (string, bool) {
	for _, imp := range m.Imports {
		if imp.Specifier == specifier {
			return imp.ID, true
		}
	}
	return "", false
}

// Name is the module's base name without extension.
func (m *Module) Name() string {
	base := path.Base(m.ID)
	return strings.TrimSuffix(base, path.Ext(base))
}

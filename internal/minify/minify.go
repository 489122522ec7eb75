// Package minify compresses emitted scripts and stylesheets with esbuild.
package minify

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Kind selects the esbuild loader.
type Kind string

const (
	KindJS  Kind = "js"
	KindCSS Kind = "css"
)

// KindForPath maps an artifact path to a minifiable kind.
func KindForPath(p string) (Kind, bool) {
	switch {
	case strings.HasSuffix(p, ".js"), strings.HasSuffix(p, ".mjs"):
		return KindJS, true
	case strings.HasSuffix(p, ".css"):
		return KindCSS, true
	}
	return "", false
}

// Minify returns the minified form of content. On error the caller keeps the
// original bytes.
func Minify(content []byte, kind Kind) ([]byte, error) {
	var loader api.Loader
	switch kind {
	case KindJS:
		loader = api.LoaderJS
	case KindCSS:
		loader = api.LoaderCSS
	default:
		return nil, fmt.Errorf("unsupported minify kind %q", kind)
	}
	res := api.Transform(string(content), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsNone,
	})
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, m := range res.Errors {
			msgs = append(msgs, m.Text)
		}
		return nil, fmt.Errorf("esbuild: %s", strings.Join(msgs, "; "))
	}
	return res.Code, nil
}

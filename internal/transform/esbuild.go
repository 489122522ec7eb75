package transform

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ScriptCapability downlevels JavaScript/TypeScript to CommonJS with esbuild
// so the bundler can link modules through require().
//
// Options: target (default es2015).
type ScriptCapability struct{}

func (ScriptCapability) Transform(_ context.Context, in Input) (Output, error) {
	target, ok := targets[strings.ToLower(in.Options.String("target", "es2015"))]
	if !ok {
		return Output{}, fmt.Errorf("unsupported target %q", in.Options.String("target", ""))
	}
	res := api.Transform(string(in.Content), api.TransformOptions{
		Loader:     scriptLoader(in.Module.ID),
		Format:     api.FormatCommonJS,
		Target:     target,
		Sourcefile: in.Module.ID,
	})
	if len(res.Errors) > 0 {
		return Output{}, messagesError(res.Errors)
	}
	return Output{Kind: KindScript, Content: res.Code}, nil
}

// ToCommonJS rewrites ESM syntax in a script module to CommonJS without
// lowering anything else. Content that is already CommonJS comes back as is.
func ToCommonJS(id string, content []byte) ([]byte, error) {
	res := api.Transform(string(content), api.TransformOptions{
		Loader:     scriptLoader(id),
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Sourcefile: id,
	})
	if len(res.Errors) > 0 {
		return nil, messagesError(res.Errors)
	}
	return res.Code, nil
}

func scriptLoader(id string) api.Loader {
	switch strings.ToLower(path.Ext(id)) {
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	default:
		return api.LoaderJS
	}
}

// StyleCapability parses and normalizes CSS with esbuild's CSS loader.
// @import and url() references are kept for the extraction step.
type StyleCapability struct{}

func (StyleCapability) Transform(_ context.Context, in Input) (Output, error) {
	res := api.Transform(string(in.Content), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Sourcefile: in.Module.ID,
	})
	if len(res.Errors) > 0 {
		return Output{}, messagesError(res.Errors)
	}
	return Output{Kind: KindStyle, Content: res.Code}, nil
}

func messagesError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

package transform

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/config"
)

const defaultAssetFilename = "assets/[name].[hash][ext]"

// Asset module types.
const (
	AssetResource = "resource" // always a separate file
	AssetInline   = "inline"   // always a data URI
	AssetAuto     = "auto"     // inline when smaller than limit
)

// AssetCapability implements url-loader style asset handling.
//
// Options: type (resource|inline|auto, default auto), limit (bytes, default
// 10000), mimetype, filename (name template), public_path.
type AssetCapability struct{}

func (AssetCapability) Transform(_ context.Context, in Input) (Output, error) {
	typ := strings.ToLower(in.Options.String("type", AssetAuto))
	limit := in.Options.Int("limit", config.DefaultInlineLimit)

	var inline bool
	switch typ {
	case AssetResource:
	case AssetInline:
		inline = true
	case AssetAuto:
		inline = ShouldInline(len(in.Content), limit)
	default:
		return Output{}, fmt.Errorf("unknown asset type %q", typ)
	}

	out := Output{
		Kind:       KindAsset,
		Content:    in.Content,
		MIMEType:   mimeFor(in.Module.ID, in.Options.String("mimetype", "")),
		Filename:   in.Options.String("filename", defaultAssetFilename),
		PublicPath: in.Options.String("public_path", ""),
	}
	if inline {
		out.Inline = true
		out.DataURI = DataURI(out.MIMEType, in.Content)
	}
	return out, nil
}

// ShouldInline applies the size threshold: inline iff size is strictly below limit.
func ShouldInline(size, limit int) bool {
	return size < limit
}

// DataURI encodes content as a base64 data URI.
func DataURI(mimeType string, content []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

func mimeFor(id, override string) string {
	if override != "" {
		return override
	}
	ext := strings.ToLower(path.Ext(id))
	switch ext {
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// RawCapability passes content through unchanged as a file asset.
//
// Options: filename, public_path.
type RawCapability struct{}

func (RawCapability) Transform(_ context.Context, in Input) (Output, error) {
	return Output{
		Kind:       KindAsset,
		Content:    in.Content,
		MIMEType:   mimeFor(in.Module.ID, in.Options.String("mimetype", "")),
		Filename:   in.Options.String("filename", defaultAssetFilename),
		PublicPath: in.Options.String("public_path", ""),
	}, nil
}

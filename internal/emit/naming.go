package emit

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var hashToken = regexp.MustCompile(`[.\-_]?\[(?:content)?hash(?::(\d+))?\]`)

// ContentHash returns the full hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Naming expands filename templates. Supported placeholders are [name],
// [ext] (including the dot), [hash], [hash:N], [contenthash] and [query]
// (always empty).
type Naming struct {
	Production bool
	HashLength int
}

// Expand renders template for a logical name/extension and content hash.
// In development every hash placeholder is removed together with the
// separator directly before it; a template left without a base name falls
// back to [name].
func (n Naming) Expand(template, name, ext, hash string) string {
	out := template
	if n.Production {
		out = hashToken.ReplaceAllStringFunc(out, func(tok string) string {
			prefix := ""
			if tok[0] != '[' {
				prefix = tok[:1]
			}
			length := n.HashLength
			if m := hashToken.FindStringSubmatch(tok); m[1] != "" {
				if l, err := strconv.Atoi(m[1]); err == nil {
					length = l
				}
			}
			if length <= 0 || length > len(hash) {
				length = len(hash)
			}
			return prefix + hash[:length]
		})
	} else {
		out = hashToken.ReplaceAllString(out, "")
		dir, file := path.Split(out)
		if file == "" || strings.HasPrefix(file, "[ext]") || strings.HasPrefix(file, ".") {
			out = dir + "[name]" + file
		}
	}
	out = strings.ReplaceAll(out, "[name]", name)
	out = strings.ReplaceAll(out, "[ext]", ext)
	out = strings.ReplaceAll(out, "[query]", "")
	return strings.TrimPrefix(path.Clean("/"+out), "/")
}

// HasHash reports whether template contains a hash placeholder.
func HasHash(template string) bool {
	return hashToken.MatchString(template)
}

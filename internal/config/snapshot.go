package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Snapshot computes a stable hash of the output-affecting configuration.
// Logging, metrics, events and watch settings are left out so that changing
// them does not invalidate cached transforms or the manifest fingerprint.
func (c *Config) Snapshot() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) { h.Write([]byte(strings.Join(parts, "="))); h.Write([]byte{0}) }

	w("entry", c.Entry)
	w("mode", string(c.Mode))
	w("output.filename", c.Output.Filename)
	w("output.css_filename", c.Output.CSSFilename)
	w("output.public_path", c.Output.PublicPath.For(c.Mode))
	w("output.hash_length", fmt.Sprint(c.Output.HashLength))
	w("resolve.extensions", strings.Join(c.Resolve.Extensions, ","))
	aliases := make([]string, 0, len(c.Resolve.Alias))
	for k, v := range c.Resolve.Alias {
		aliases = append(aliases, k+"->"+v)
	}
	sort.Strings(aliases)
	w("resolve.alias", strings.Join(aliases, ","))
	for _, r := range c.Rules {
		w("rule", r.Fingerprint())
	}
	for _, p := range c.Plugins {
		w("plugin", p.Name, canonicalOptions(p.Options))
	}
	allow := append([]string(nil), c.Env.Allow...)
	sort.Strings(allow)
	w("env.allow", strings.Join(allow, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint identifies a rule's behaviour: test, exclude, transform and options.
// Transform cache entries are keyed by it.
func (r RuleConfig) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", r.Test, r.Exclude, r.Use, canonicalOptions(r.Options))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalOptions(o Options) string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:%v;", k, o[k])
	}
	return b.String()
}

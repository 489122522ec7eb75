// Package buildctx holds the immutable per-run build context shared by every
// pipeline component.
//
// A Context is constructed once at pipeline start, passed by pointer and never
// mutated afterwards. Nothing in this package is global: two builds in the same
// process each get their own Context.
package buildctx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Context is the read-only state of one pipeline run.
type Context struct {
	BuildID    string
	Started    time.Time
	Mode       config.Mode
	SourceRoot string // absolute
	Entry      string // absolute
	OutputDir  string // absolute
	PublicPath string
	HashLength int
	Aliases    map[string]string // alias -> absolute path
	Extensions []string

	env map[string]string
}

// Option customizes context construction.
type Option func(*options)

type options struct {
	lookupEnv func(string) (string, bool)
	now       func() time.Time
	buildID   string
	baseDir   string
}

// WithLookupEnv replaces os.LookupEnv as the process environment source.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookupEnv = fn }
}

// WithBuildID fixes the build identifier instead of generating a UUID.
func WithBuildID(id string) Option {
	return func(o *options) { o.buildID = id }
}

// WithClock overrides the start-time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBaseDir resolves relative config paths against dir instead of the
// working directory. The CLI passes the directory holding assetpipe.yaml.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// New builds a Context from a loaded configuration. The environment snapshot
// is taken here: only allow-listed names are captured, values from the process
// environment win over values read from env files.
func New(cfg *config.Config, opts ...Option) (*Context, error) {
	o := options{lookupEnv: os.LookupEnv, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.buildID == "" {
		o.buildID = uuid.NewString()
	}
	if o.baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "cannot determine working directory").Build()
		}
		o.baseDir = wd
	}

	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(o.baseDir, p)
	}

	sourceRoot := abs(cfg.SourceRoot)
	ctx := &Context{
		BuildID:    o.buildID,
		Started:    o.now(),
		Mode:       cfg.Mode,
		SourceRoot: sourceRoot,
		Entry:      abs(cfg.Entry),
		OutputDir:  abs(cfg.Output.Directory),
		PublicPath: cfg.Output.PublicPath.For(cfg.Mode),
		HashLength: cfg.Output.HashLength,
		Aliases:    make(map[string]string, len(cfg.Resolve.Alias)),
		Extensions: append([]string(nil), cfg.Resolve.Extensions...),
	}
	for name, target := range cfg.Resolve.Alias {
		ctx.Aliases[name] = abs(target)
	}
	if ctx.OutputDir == sourceRoot {
		return nil, errors.ValidationError("output directory must differ from the source root").
			WithContext("path", ctx.OutputDir).
			Build()
	}

	files := make([]string, 0, len(cfg.Env.Files))
	for _, f := range cfg.Env.Files {
		files = append(files, abs(f))
	}
	env, err := snapshotEnv(cfg.Env.Allow, files, o.lookupEnv)
	if err != nil {
		return nil, err
	}
	ctx.env = env
	return ctx, nil
}

func snapshotEnv(allow, files []string, lookup func(string) (string, bool)) (map[string]string, error) {
	fromFiles := map[string]string{}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		vals, err := godotenv.Read(f)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read env file").
				WithContext("path", f).
				Build()
		}
		// Earlier files win, matching godotenv.Load semantics.
		for k, v := range vals {
			if _, ok := fromFiles[k]; !ok {
				fromFiles[k] = v
			}
		}
	}

	env := make(map[string]string, len(allow))
	for _, name := range allow {
		if v, ok := lookup(name); ok {
			env[name] = v
			continue
		}
		if v, ok := fromFiles[name]; ok {
			env[name] = v
		}
	}
	return env, nil
}

// Env returns the snapshotted value of an allow-listed variable.
func (c *Context) Env(name string) (string, bool) {
	v, ok := c.env[name]
	return v, ok
}

// EnvNames returns the captured variable names in sorted order.
func (c *Context) EnvNames() []string {
	names := make([]string, 0, len(c.env))
	for k := range c.env {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Production reports whether the run produces hashed, minified output.
func (c *Context) Production() bool { return c.Mode.IsProduction() }

// PublicRef joins the mode's public path with an output-relative path.
func (c *Context) PublicRef(rel string) string {
	return JoinPublic(c.PublicPath, rel)
}

// RelSource returns p relative to the source root using forward slashes.
func (c *Context) RelSource(p string) (string, error) {
	rel, err := filepath.Rel(c.SourceRoot, p)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", p, err)
	}
	return filepath.ToSlash(rel), nil
}

// JoinPublic concatenates a URL prefix and a relative path with exactly one slash.
func JoinPublic(prefix, rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if prefix == "" {
		return rel
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + rel
	}
	return prefix + "/" + rel
}

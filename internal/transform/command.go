package transform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandCapability pipes module content through an external program and
// hands its stdout to another capability. This is how preprocessors such as
// stylus are bound.
//
// Options: command (argv list), then (capability, default raw), timeout
// (duration, default 30s). The module path is exported as ASSETPIPE_MODULE.
type CommandCapability struct {
	registry *Registry
}

// NewCommandCapability binds the follow-up lookup to registry.
func NewCommandCapability(registry *Registry) *CommandCapability {
	return &CommandCapability{registry: registry}
}

func (c *CommandCapability) Transform(ctx context.Context, in Input) (Output, error) {
	argv := in.Options.Strings("command")
	if len(argv) == 0 {
		return Output{}, fmt.Errorf("command option is required")
	}
	then := in.Options.String("then", "raw")
	if then == "command" {
		return Output{}, fmt.Errorf("command cannot chain to itself")
	}
	next, ok := c.registry.Get(then)
	if !ok {
		return Output{}, fmt.Errorf("unknown follow-up transform %q", then)
	}

	ctx, cancel := context.WithTimeout(ctx, in.Options.Duration("timeout", 30*time.Second))
	defer cancel()

	// #nosec G204 -- the command line comes from the build configuration.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(in.Module.Path)
	cmd.Stdin = bytes.NewReader(in.Content)
	cmd.Env = append(cmd.Environ(), "ASSETPIPE_MODULE="+in.Module.Path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Output{}, fmt.Errorf("%s: %w", argv[0], err)
		}
		return Output{}, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
	}

	return next.Transform(ctx, Input{Module: in.Module, Content: stdout.Bytes(), Options: in.Options})
}

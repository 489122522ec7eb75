package plugins

import (
	"encoding/json"
	"regexp"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
)

var processEnvRef = regexp.MustCompile(`\bprocess\.env\.([A-Za-z_][A-Za-z0-9_]*)\b`)

// envPlugin replaces process.env.NAME in scripts with the snapshotted value.
// Names outside the snapshot are left untouched, except NODE_ENV, which
// falls back to the build mode.
type envPlugin struct {
	defaults map[string]string
}

func newEnv(opts config.Options, _ *config.Config, _ Deps) (Plugin, error) {
	p := &envPlugin{defaults: map[string]string{}}
	if raw, ok := opts["defaults"].(map[string]any); ok {
		for k, v := range raw {
			p.defaults[k] = config.Options{"v": v}.String("v", "")
		}
	}
	return p, nil
}

func (*envPlugin) Name() string { return config.PluginEnv }
func (*envPlugin) Phase() Phase { return PhaseBuild }

func (p *envPlugin) TransformSource(env *Env, mod *discovery.Module, content []byte) ([]byte, error) {
	if mod.Type != discovery.TypeScript {
		return content, nil
	}
	return processEnvRef.ReplaceAllFunc(content, func(ref []byte) []byte {
		name := string(processEnvRef.FindSubmatch(ref)[1])
		value, ok := p.lookup(env, name)
		if !ok {
			return ref
		}
		lit, err := json.Marshal(value)
		if err != nil {
			return ref
		}
		return lit
	}), nil
}

func (p *envPlugin) lookup(env *Env, name string) (string, bool) {
	if v, ok := env.Build.Env(name); ok {
		return v, true
	}
	if v, ok := p.defaults[name]; ok {
		return v, true
	}
	if name == "NODE_ENV" {
		return string(env.Build.Mode), true
	}
	return "", false
}

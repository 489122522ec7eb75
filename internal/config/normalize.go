package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizationResult captures adjustments and warnings from the normalization pass.
type NormalizationResult struct {
	Warnings []string
}

// NormalizeConfig canonicalizes enumerations and paths before defaults apply.
func NormalizeConfig(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}

	if strings.TrimSpace(string(c.Mode)) != "" {
		r := modeEnum.NormalizeWithWarning("mode", string(c.Mode))
		c.Mode = r.Value
		res.add(r.Warning)
	}
	if strings.TrimSpace(string(c.Logging.Level)) != "" {
		r := logLevelEnum.NormalizeWithWarning("logging.level", string(c.Logging.Level))
		c.Logging.Level = r.Value
		res.add(r.Warning)
	}
	if strings.TrimSpace(string(c.Logging.Format)) != "" {
		r := logFormatEnum.NormalizeWithWarning("logging.format", string(c.Logging.Format))
		c.Logging.Format = r.Value
		res.add(r.Warning)
	}

	c.Entry = strings.TrimSpace(c.Entry)
	if c.Output.Directory != "" {
		c.Output.Directory = filepath.Clean(c.Output.Directory)
	}
	for i, ext := range c.Resolve.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			res.add(fmt.Sprintf("normalized resolve.extensions[%d] from '%s' to '.%s'", i, c.Resolve.Extensions[i], ext))
			ext = "." + ext
		}
		c.Resolve.Extensions[i] = ext
	}
	for i := range c.Rules {
		c.Rules[i].Use = strings.ToLower(strings.TrimSpace(c.Rules[i].Use))
	}
	for i := range c.Plugins {
		c.Plugins[i].Name = strings.ToLower(strings.TrimSpace(c.Plugins[i].Name))
	}
	if c.Build.Workers < 0 {
		res.add(fmt.Sprintf("normalized build.workers from %d to 0", c.Build.Workers))
		c.Build.Workers = 0
	}
	if c.Output.HashLength < 0 {
		c.Output.HashLength = 0
	}
	return res, nil
}

func (r *NormalizationResult) add(w string) {
	if w != "" {
		r.Warnings = append(r.Warnings, w)
	}
}

package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/rules"
)

// Cache stores serialized transform outputs by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Runner executes the capability selected by a rule for one module.
type Runner struct {
	registry *Registry
	cache    Cache
	recorder metrics.Recorder
	mode     string
}

// NewRunner creates a runner. cache may be nil.
func NewRunner(registry *Registry, cache Cache, recorder metrics.Recorder, mode string) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{registry: registry, cache: cache, recorder: recorder, mode: mode}
}

// CacheKey identifies a transform result: mode, rule behaviour, module
// identity and content. Changing any of them misses the cache.
func CacheKey(mode string, rule *rules.Rule, mod *discovery.Module, content []byte) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(rule.Fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(mod.ID))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Run transforms content (the module's source after build-phase hooks) with
// the rule's capability. A nil rule means no rule matched and the module
// passes through. Capability errors become fatal transform failures carrying
// the module path.
func (r *Runner) Run(ctx context.Context, mod *discovery.Module, rule *rules.Rule, content []byte) (Output, error) {
	if rule == nil {
		return Passthrough(&discovery.Module{ID: mod.ID, Path: mod.Path, Type: mod.Type, Content: content}), nil
	}
	capability, ok := r.registry.Get(rule.Use)
	if !ok {
		return Output{}, errors.TransformFailure(mod.ID, errors.ConfigError("unknown transform "+rule.Use).Build()).
			WithContext("rule", rule.Name).
			Build()
	}

	var key string
	if r.cache != nil {
		key = CacheKey(r.mode, rule, mod, content)
		if out, hit := r.lookup(ctx, key, mod); hit {
			r.recorder.IncCacheResult(true)
			return out, nil
		}
		r.recorder.IncCacheResult(false)
	}

	start := time.Now()
	out, err := capability.Transform(ctx, Input{Module: mod, Content: content, Options: rule.Options})
	r.recorder.ObserveTransformDuration(rule.Use, time.Since(start))
	if err != nil {
		return Output{}, errors.TransformFailure(mod.ID, err).
			WithContext("path", mod.Path).
			WithContext("rule", rule.Name).
			WithContext("transform", rule.Use).
			Build()
	}
	slog.Debug("Transformed module", logfields.Module(mod.ID), logfields.Rule(rule.Name),
		logfields.Transform(rule.Use), logfields.Size(len(out.Content)))

	if r.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := r.cache.Put(ctx, key, data); err != nil {
				slog.Warn("Transform cache write failed", logfields.Module(mod.ID), logfields.Error(err))
			}
		}
	}
	return out, nil
}

func (r *Runner) lookup(ctx context.Context, key string, mod *discovery.Module) (Output, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Transform cache read failed", logfields.Module(mod.ID), logfields.Error(err))
		return Output{}, false
	}
	if !ok {
		return Output{}, false
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("Discarding corrupt transform cache entry", logfields.Module(mod.ID), logfields.Error(err))
		return Output{}, false
	}
	return out, true
}

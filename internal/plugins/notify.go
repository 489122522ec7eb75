package plugins

import (
	"context"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
)

// notifyPlugin publishes a BuildCompleted event once output is live.
type notifyPlugin struct {
	publisher events.Publisher
	now       func() time.Time
}

func newNotify(_ config.Options, _ *config.Config, deps Deps) (Plugin, error) {
	return &notifyPlugin{publisher: deps.Publisher, now: time.Now}, nil
}

func (*notifyPlugin) Name() string { return config.PluginNotify }
func (*notifyPlugin) Phase() Phase { return PhasePost }

func (p *notifyPlugin) Complete(ctx context.Context, env *Env, snap manifest.Snapshot) error {
	hash, err := snap.Hash()
	if err != nil {
		return err
	}
	now := p.now()
	evt, err := events.NewBuildCompleted(env.Build.BuildID, len(snap.Assets), hash, now.Sub(env.Build.Started), now)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, evt)
}

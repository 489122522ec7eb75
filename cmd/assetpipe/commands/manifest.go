package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/go-cmp/cmp"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
)

// ManifestCmd implements the 'manifest' command.
type ManifestCmd struct {
	Path string `arg:"" optional:"" help:"Manifest file (defaults to <output>/manifest.json)"`
	Diff string `help:"Compare against another manifest and print the differences"`
	JSON bool   `name:"json" help:"Print the manifest as JSON"`
}

func (m *ManifestCmd) Run(g *Global, root *CLI) error {
	path := m.Path
	if path == "" {
		cfg, baseDir, err := root.loadConfig(g)
		if err != nil {
			return err
		}
		out := cfg.Output.Directory
		if !filepath.IsAbs(out) {
			out = filepath.Join(baseDir, out)
		}
		path = filepath.Join(out, config.DefaultManifestName)
	}

	snap, err := manifest.Load(path)
	if err != nil {
		return err
	}

	if m.Diff != "" {
		other, err := manifest.Load(m.Diff)
		if err != nil {
			return err
		}
		diff := DiffManifests(snap, other)
		if diff == "" {
			fmt.Println("manifests are identical")
			return nil
		}
		fmt.Print(diff)
		return nil
	}

	if m.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return errors.WrapError(err, errors.CategoryInternal, "encode manifest").Build()
		}
		return nil
	}

	fmt.Printf("build %s (%s)\n", snap.BuildID, snap.Mode)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tPATH\tSIZE")
	for _, name := range snap.Names() {
		e := snap.Assets[name]
		p := e.Path
		if e.Inline {
			p = "(inline)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", name, e.Kind, p, e.Size)
	}
	return tw.Flush()
}

// DiffManifests reports asset and module differences between two builds.
// Build IDs always differ and are left out.
func DiffManifests(a, b *manifest.Snapshot) string {
	return cmp.Diff(a.Assets, b.Assets) + cmp.Diff(a.Modules, b.Modules)
}

package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/cmd/assetpipe/commands"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Set at link time.
var version = "dev"

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("assetpipe"),
		kong.Description("Static asset build pipeline"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(global),
	)

	if err := parser.Run(global, cli); err != nil {
		adapter := errors.NewCLIErrorAdapter(cli.Verbose, global.Logger)
		os.Exit(adapter.Report(err))
	}
}

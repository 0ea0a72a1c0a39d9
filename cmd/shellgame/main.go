package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" help:"Run the shell game server"`
	Play    PlayCmd          `cmd:"" help:"Play against a server over WebSocket"`
	Demo    DemoCmd          `cmd:"" help:"Play against an in-process game, no server needed"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("shellgame"),
		kong.Description("A cups-and-ball shuffle game with wagering"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

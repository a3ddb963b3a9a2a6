// treebcasttrackerd runs a standalone tracker (package tracker): the
// rendezvous every producer registers a broadcast id's guide address with,
// and every consumer looks that address up through.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"

	"github.com/distcompute/treebcast/internal/debug"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/tracker"
)

var listenFlag = cli.StringFlag{
	Name:  "listen",
	Usage: "address to listen on",
	Value: ":7575",
}

func makeCLIApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "tree-broadcast tracker daemon"
	app.Flags = append([]cli.Flag{listenFlag}, debug.Flags...)
	app.Action = run

	app.Before = func(ctx *cli.Context) error {
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		logger.Flush()
		return nil
	}
	return app
}

func run(ctx *cli.Context) error {
	tr := tracker.New()
	if err := tr.Listen(ctx.String(listenFlag.Name)); err != nil {
		return fmt.Errorf("tracker: listen: %w", err)
	}
	glog.V(logger.Info).Infof("treebcasttrackerd: listening on %s", tr.Addr())
	return tr.Serve()
}

func main() {
	app := makeCLIApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// treebcastd runs one producer or consumer participant in a tree-broadcast:
// given -produce, it encodes a value and seeds it; given -id, it resolves an
// existing broadcast by id, printing the decoded value once it arrives.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"

	"github.com/distcompute/treebcast"
	"github.com/distcompute/treebcast/internal/debug"
	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
	"github.com/distcompute/treebcast/metrics"
	"github.com/distcompute/treebcast/node"
)

var (
	trackerFlag = cli.StringFlag{
		Name:   "tracker",
		Usage:  "tracker address to register/look up broadcasts against",
		EnvVar: "TREEBCAST_TRACKER",
	}
	workDirFlag = cli.StringFlag{
		Name:  "workdir",
		Usage: "filesystem directory for the fallback path",
		Value: filepath.Join(os.TempDir(), "treebcast"),
	}
	debugHTTPFlag = cli.StringFlag{
		Name:  "debug-http",
		Usage: "address to serve the debug endpoint on (empty disables it)",
	}
	produceFlag = cli.StringFlag{
		Name:  "produce",
		Usage: "publish this literal string as a new broadcast and print its id",
	}
	localFlag = cli.BoolFlag{
		Name:  "local",
		Usage: "publish into the local cache only, skipping all networking (requires -produce)",
	}
	idFlag = cli.StringFlag{
		Name:  "id",
		Usage: "resolve and print the value of an existing broadcast id",
	}
	metricsFileFlag = cli.StringFlag{
		Name:  "metrics-file",
		Usage: "append periodic JSON metrics snapshots to this file (for treebcasttop)",
	}
)

func makeCLIApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "tree-broadcast producer/consumer demo daemon"
	app.Flags = append([]cli.Flag{
		trackerFlag, workDirFlag, debugHTTPFlag, produceFlag, localFlag, idFlag, metricsFileFlag,
	}, debug.Flags...)
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
	produce := ctx.String(produceFlag.Name)
	id := ctx.String(idFlag.Name)
	if produce == "" && id == "" {
		return cli.NewExitError("one of -produce or -id is required", 1)
	}
	if produce != "" && id != "" {
		return cli.NewExitError("-produce and -id are mutually exclusive", 1)
	}

	rt := node.New(node.Config{
		WorkDir:       ctx.String(workDirFlag.Name),
		TrackerAddr:   ctx.String(trackerFlag.Name),
		DebugHTTPAddr: ctx.String(debugHTTPFlag.Name),
	}, nil)
	if err := rt.StartDebugHTTP(); err != nil {
		return err
	}
	defer rt.StopDebugHTTP()

	if mf := ctx.String(metricsFileFlag.Name); mf != "" {
		go metrics.Collect(mf)
	}

	if produce != "" {
		isLocal := ctx.Bool(localFlag.Name)
		h, err := treebcast.NewBroadcast(rt, produce, isLocal)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Println(h.ID)
		glog.V(logger.Info).Infof("treebcastd: seeding %s, press ctrl-c to exit", h.ID)
		select {}
	}

	h := treebcast.Handle{ID: id}
	var value string
	if err := h.Value(rt, &value); err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	fmt.Println(value)
	glog.V(logger.Info).Infof("treebcastd: seeding %s for downstream peers, press ctrl-c to exit", id)
	select {}
}

func main() {
	app := makeCLIApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

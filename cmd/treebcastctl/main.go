// treebcastctl is an interactive admin shell for a running tracker: it
// looks up, registers and unregisters broadcast ids, and prints a
// colorized transcript, the same way the teacher's JavaScript console
// wraps a running node's RPC endpoint in a liner-backed REPL.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/go-wordwrap"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/distcompute/treebcast/tracker"
)

var trackerFlag = cli.StringFlag{
	Name:  "tracker",
	Usage: "tracker address to connect to",
}

const historyFile = ".treebcastctl_history"

var helpText = wordwrap.WrapString(
	"Commands: lookup <id> looks up a broadcast's guide address; "+
		"register <id> <guideAddr> registers one by hand; "+
		"unregister <id> withdraws one; help prints this message; "+
		"exit leaves the shell.",
	uint(72),
)

func makeCLIApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "interactive tracker admin shell"
	app.Flags = []cli.Flag{trackerFlag}
	app.Action = run
	return app
}

func run(ctx *cli.Context) error {
	trackerAddr := ctx.String(trackerFlag.Name)
	if trackerAddr == "" {
		return cli.NewExitError("-tracker is required", 1)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), historyFile)
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	color.Green("treebcastctl connected to %s", trackerAddr)
	fmt.Println(helpText)

	for {
		input, err := line.Prompt("tbcast> ")
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !dispatch(trackerAddr, input) {
			break
		}
	}
	return nil
}

// dispatch runs one command line and reports whether the shell should keep
// reading. It returns false only for "exit"/"quit".
func dispatch(trackerAddr, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "exit", "quit":
		return false
	case "help":
		fmt.Println(helpText)
	case "lookup":
		if len(fields) != 2 {
			color.Red("usage: lookup <id>")
			return true
		}
		addr, err := tracker.Lookup(trackerAddr, fields[1])
		if err != nil {
			color.Red("lookup %s: %v", fields[1], err)
			return true
		}
		color.Green("%s -> %s", fields[1], addr)
	case "register":
		if len(fields) != 3 {
			color.Red("usage: register <id> <guideAddr>")
			return true
		}
		if err := tracker.Register(trackerAddr, fields[1], fields[2]); err != nil {
			color.Red("register %s: %v", fields[1], err)
			return true
		}
		color.Green("registered %s -> %s", fields[1], fields[2])
	case "unregister":
		if len(fields) != 2 {
			color.Red("usage: unregister <id>")
			return true
		}
		if err := tracker.Unregister(trackerAddr, fields[1]); err != nil {
			color.Red("unregister %s: %v", fields[1], err)
			return true
		}
		color.Green("unregistered %s", fields[1])
	default:
		color.Red("unknown command %q, type help for a list", fields[0])
	}
	return true
}

func main() {
	app := makeCLIApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

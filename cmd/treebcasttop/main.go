// treebcasttop renders a live terminal dashboard off the JSON metrics
// snapshots metrics.Collect appends to a file, the same termui/termbox
// combination the teacher's experimental chain-sync dashboard draws with,
// pointed at tree-broadcast counters instead of block-import ones.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gizak/termui"
	"gopkg.in/urfave/cli.v1"
)

var (
	metricsFileFlag = cli.StringFlag{
		Name:  "metrics-file",
		Usage: "file metrics.Collect() is appending JSON snapshots to",
	}
	pollFlag = cli.DurationFlag{
		Name:  "poll",
		Usage: "how often to re-read the metrics file's last snapshot",
		Value: 2 * time.Second,
	}
)

// snapshot holds the handful of counters this dashboard cares about, pulled
// out of the registry's {name: {count: ...}} JSON encoding. Meters decode
// with a "count" field in rcrowley/go-metrics' JSON marshaling; gauges
// decode with a "value" field.
type snapshot struct {
	CacheHits          int64
	CacheMisses        int64
	BroadcastsStarted  int64
	BroadcastsResolved int64
	BroadcastFailures  int64
	TrackerLookups     int64
	TrackerMisses      int64
	GuideLeechers      int64
}

func parseSnapshot(line []byte) (snapshot, error) {
	var raw map[string]map[string]json.Number
	if err := json.Unmarshal(line, &raw); err != nil {
		return snapshot{}, err
	}
	count := func(name string) int64 {
		v, ok := raw[name]
		if !ok {
			return 0
		}
		if n, ok := v["count"]; ok {
			i, _ := n.Int64()
			return i
		}
		if n, ok := v["value"]; ok {
			i, _ := n.Int64()
			return i
		}
		return 0
	}
	return snapshot{
		CacheHits:          count("cache/hit"),
		CacheMisses:        count("cache/miss"),
		BroadcastsStarted:  count("broadcast/start"),
		BroadcastsResolved: count("broadcast/resolve"),
		BroadcastFailures:  count("broadcast/failure"),
		TrackerLookups:     count("tracker/lookup"),
		TrackerMisses:      count("tracker/lookup/miss"),
		GuideLeechers:      count("guide/leechers"),
	}, nil
}

// lastLine returns the final non-empty line of file, the most recent
// snapshot metrics.Collect appended.
func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var last []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		last = append([]byte(nil), scanner.Bytes()...)
	}
	if last == nil {
		return nil, fmt.Errorf("treebcasttop: %s has no snapshots yet", path)
	}
	return last, scanner.Err()
}

const sparkHistory = 80

func makeCLIApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "live terminal dashboard over broadcast metrics"
	app.Flags = []cli.Flag{metricsFileFlag, pollFlag}
	app.Action = run
	return app
}

func run(ctx *cli.Context) error {
	path := ctx.String(metricsFileFlag.Name)
	if path == "" {
		return cli.NewExitError("-metrics-file is required", 1)
	}
	poll := ctx.Duration(pollFlag.Name)

	if err := termui.Init(); err != nil {
		return fmt.Errorf("treebcasttop: %w", err)
	}
	defer termui.Close()

	resolvedSpark := termui.Sparkline{Title: "broadcast/resolve", LineColor: termui.ColorGreen, Data: []int{0}}
	failureSpark := termui.Sparkline{Title: "broadcast/failure", LineColor: termui.ColorRed, Data: []int{0}}
	lookupSpark := termui.Sparkline{Title: "tracker/lookup", LineColor: termui.ColorCyan, Data: []int{0}}
	holder := termui.NewSparklines(resolvedSpark, failureSpark, lookupSpark)
	holder.BorderLabel = "treebcast"
	holder.Width = 100
	holder.Height = 3*3 + 4
	holder.X = 0
	holder.Y = 0

	leechersGauge := termui.NewGauge()
	leechersGauge.BorderLabel = "guide/leechers"
	leechersGauge.Width = holder.Width
	leechersGauge.Height = 3
	leechersGauge.X = 0
	leechersGauge.Y = holder.Height
	leechersGauge.BarColor = termui.ColorYellow

	redraw := func(s snapshot) {
		holder.Lines[0].Data = appendCapped(holder.Lines[0].Data, int(s.BroadcastsResolved))
		holder.Lines[1].Data = appendCapped(holder.Lines[1].Data, int(s.BroadcastFailures))
		holder.Lines[2].Data = appendCapped(holder.Lines[2].Data, int(s.TrackerLookups))
		leechersGauge.Percent = int(s.GuideLeechers)
		leechersGauge.Label = fmt.Sprintf("%d", s.GuideLeechers)
		termui.Render(holder, leechersGauge)
	}

	termui.Handle("/sys/kbd/q", func(termui.Event) { termui.StopLoop() })
	termui.Handle("/sys/kbd/C-c", func(termui.Event) { termui.StopLoop() })

	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for range ticker.C {
			line, err := lastLine(path)
			if err != nil {
				continue
			}
			s, err := parseSnapshot(line)
			if err != nil {
				spew.Fdump(os.Stderr, err)
				continue
			}
			redraw(s)
		}
	}()

	termui.Loop()
	return nil
}

func appendCapped(data []int, v int) []int {
	data = append(data, v)
	if len(data) > sparkHistory {
		data = data[len(data)-sparkHistory:]
	}
	return data
}

func main() {
	app := makeCLIApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

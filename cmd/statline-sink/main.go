package main

// main.go implements the statline debug sink CLI: it binds a UDP socket,
// decodes incoming DogStatsD datagrams and prints them either as raw lines
// or as periodic per-type tallies.  It also supports an emit mode that
// fabricates a deterministic metric workload against a target endpoint,
// useful for smoke-testing a pipeline end to end:
//
//	statline-sink -listen 127.0.0.1:8125            # print every line
//	statline-sink -listen 127.0.0.1:8125 -watch 5s  # rolling tallies
//	statline-sink -emit 127.0.0.1:8125 -n 10000     # generate load
//
// Build-time flag: `-ldflags "-X main.version=vX.Y.Z"` is set by GoReleaser.
// ---------------------------------------------------------------
// © 2025 statline authors. MIT License.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	statline "github.com/statline/statline/pkg"
)

var version = "dev"

type options struct {
	listen  string
	emit    string
	n       int
	watch   time.Duration
	jsonOut bool
	version bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.listen, "listen", "", "UDP address to bind and decode lines from")
	flag.StringVar(&opts.emit, "emit", "", "DogStatsD address to emit a test workload to")
	flag.IntVar(&opts.n, "n", 1000, "number of recordings per metric in emit mode")
	flag.DurationVar(&opts.watch, "watch", 0, "print rolling tallies at this interval instead of raw lines")
	flag.BoolVar(&opts.jsonOut, "json", false, "emit tallies as JSON")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.version {
		fmt.Println(version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful exit.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	switch {
	case opts.emit != "":
		if err := emitWorkload(opts.emit, opts.n); err != nil {
			fatal(err)
		}
	case opts.listen != "":
		if err := runSink(ctx, opts); err != nil {
			fatal(err)
		}
	default:
		fatal(fmt.Errorf("one of -listen or -emit is required"))
	}
}

/* -------------------------------------------------------------------------
   Sink mode
   ------------------------------------------------------------------------- */

type tally struct {
	mu        sync.Mutex
	datagrams uint64
	byType    map[string]uint64
}

func (t *tally) record(line string) {
	// <metric>:<value>|<type>[|#tags]
	bar := strings.IndexByte(line, '|')
	if bar < 0 || bar+1 >= len(line) {
		return
	}
	typ := line[bar+1:]
	if next := strings.IndexByte(typ, '|'); next >= 0 {
		typ = typ[:next]
	}
	t.mu.Lock()
	t.byType[typ]++
	t.mu.Unlock()
}

func (t *tally) snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := map[string]any{"datagrams": t.datagrams}
	for k, v := range t.byType {
		out["lines_"+k] = v
	}
	return out
}

func runSink(ctx context.Context, opts *options) error {
	addr, err := net.ResolveUDPAddr("udp", opts.listen)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "listening on %s …\n", conn.LocalAddr())

	t := &tally{byType: make(map[string]uint64)}

	go func() {
		<-ctx.Done()
		conn.Close() // unblock the read loop
	}()

	if opts.watch > 0 {
		go func() {
			ticker := time.NewTicker(opts.watch)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					dump(t.snapshot(), opts.jsonOut)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	buf := make([]byte, 64<<10)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				dump(t.snapshot(), opts.jsonOut)
				return nil
			}
			return err
		}
		t.mu.Lock()
		t.datagrams++
		t.mu.Unlock()
		for _, line := range strings.Split(strings.TrimRight(string(buf[:n]), "\n"), "\n") {
			if line == "" {
				continue
			}
			t.record(line)
			if opts.watch == 0 {
				fmt.Println(line)
			}
		}
	}
}

func dump(snap map[string]any, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(snap)
		return
	}
	fmt.Printf("datagrams: %v", snap["datagrams"])
	for k, v := range snap {
		if k == "datagrams" {
			continue
		}
		fmt.Printf("  %s: %v", k, v)
	}
	fmt.Println()
}

/* -------------------------------------------------------------------------
   Emit mode — deterministic workload generator
   ------------------------------------------------------------------------- */

func emitWorkload(dst string, n int) error {
	c, err := statline.New("0.0.0.0:0", dst,
		statline.WithPrefix("probe."),
		statline.WithFlushInterval(time.Second),
	)
	if err != nil {
		return err
	}

	endpoints := []string{"endpoint:/users", "endpoint:/orders", "endpoint:/health"}
	for i := 0; i < n; i++ {
		ep := endpoints[i%len(endpoints)]
		c.Count(statline.Static("requests"), []statline.Str{statline.Owned(ep)})
		c.Gauge(statline.Static("queue.depth"), uint64(i%100), []statline.Str{statline.Owned(ep)})
		c.Histogram(statline.Static("latency"), uint64(1+i%500), []statline.Str{statline.Owned(ep)})
	}

	c.Shutdown()
	fmt.Fprintf(os.Stderr, "emitted %d recordings per metric to %s\n", n, dst)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "statline-sink:", err)
	os.Exit(1)
}

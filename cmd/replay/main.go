// Package main replays a recorded event stream through the detection
// pipeline offline. The same recording always yields the same
// transition trace and signals; --verify runs the stream twice and
// fails when the trajectories diverge.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/replay"
)

func main() {
	file := flag.String("file", "", "JSONL recording of feed rows (required)")
	thresholdsPath := flag.String("thresholds", os.Getenv("SCF_THRESHOLDS_FILE"), "thresholds YAML file")
	interval := flag.Duration("interval", 2*time.Second, "simulated tick cadence")
	verify := flag.Bool("verify", false, "replay twice and fail on divergence")
	outputJSON := flag.Bool("json", false, "emit the result as JSON")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if *file == "" {
		log.Fatal().Msg("--file is required")
	}

	th, err := config.LoadThresholds(*thresholdsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("thresholds load failed")
	}

	rows, err := replay.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("recording read failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := replay.Options{
		Thresholds: th,
		Interval:   *interval,
		Log:        zerolog.Nop(),
	}

	var res *replay.Result
	if *verify {
		res, err = replay.Verify(ctx, rows, opts)
	} else {
		res, err = replay.NewRunner(opts).Run(ctx, rows)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatal().Err(err).Msg("encode failed")
		}
		return
	}

	printResult(res, *verify)
}

func printResult(res *replay.Result, verified bool) {
	fmt.Printf("rows:        %d\n", res.Rows)
	fmt.Printf("ticks:       %d\n", res.Ticks)
	fmt.Printf("pools:       %d\n", len(res.Pools))
	fmt.Printf("signals:     %d\n", len(res.Signals))
	fmt.Printf("fingerprint: %s\n", res.Fingerprint)
	if verified {
		fmt.Println("determinism: ok (two runs matched)")
	}

	if len(res.Trace) > 0 {
		fmt.Println("\ntransitions:")
		for _, tr := range res.Trace {
			suffix := ""
			if tr.Suppressed {
				suffix = " (suppressed)"
			}
			fmt.Printf("  %s  %-44s %s -> %s%s\n",
				time.UnixMilli(tr.TickMs).UTC().Format(time.RFC3339),
				tr.Pool, tr.From, tr.To, suffix)
		}
	}

	if len(res.Signals) > 0 {
		fmt.Println("\nsignals:")
		for _, sig := range res.Signals {
			reasons := make([]string, 0, len(sig.Reasons))
			for name, r := range sig.Reasons {
				if r.Passed {
					reasons = append(reasons, name)
				}
			}
			sort.Strings(reasons)
			fmt.Printf("  %s  %-44s score=%.3f passed=[%s]\n",
				time.UnixMilli(sig.TimestampMs).UTC().Format(time.RFC3339),
				sig.Pool, sig.Score, strings.Join(reasons, " "))
		}
	}
}

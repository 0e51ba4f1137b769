// mixguard runs a local demonstration of the maliciously secure
// three-party shuffle: it secret-shares a batch of random rows,
// executes all parties of all shards in one process over the in-memory
// world and reports whether the verified output is a permutation of
// the input.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/internal/mpctest"
	"github.com/mixguard/mixguard/log"
	"github.com/mixguard/mixguard/metrics"
	"github.com/mixguard/mixguard/protocol"
	"github.com/mixguard/mixguard/shuffle"
)

func main() {
	app := &cli.App{
		Name:    "mixguard",
		Usage:   "run a local maliciously secure shuffle over three in-process helpers",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "TOML configuration `FILE`"},
			&cli.IntFlag{Name: "records", Value: 10, Usage: "number of rows to shuffle"},
			&cli.IntFlag{Name: "bits", Value: 112, Usage: "row width in bits, multiple of 8"},
			&cli.IntFlag{Name: "shards", Value: 1, Usage: "number of shards per helper"},
			&cli.StringFlag{Name: "seed", Usage: "hex seed for deterministic runs"},
			&cli.StringFlag{Name: "metrics", Usage: "serve prometheus metrics on `ADDR` during the run"},
			&cli.BoolFlag{Name: "json", Usage: "log in JSON"},
			&cli.BoolFlag{Name: "verbose", Usage: "log at debug level"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// config mirrors the command line flags; flags win over the file.
type config struct {
	Records int    `toml:"records"`
	Bits    int    `toml:"row_bits"`
	Shards  int    `toml:"shards"`
	Seed    string `toml:"seed"`
}

func loadConfig(c *cli.Context) (config, error) {
	cfg := config{
		Records: c.Int("records"),
		Bits:    c.Int("bits"),
		Shards:  c.Int("shards"),
		Seed:    c.String("seed"),
	}
	if path := c.String("config"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading config %q: %w", path, err)
		}
		for _, name := range []string{"records", "bits", "shards", "seed"} {
			if !c.IsSet(name) {
				continue
			}
			switch name {
			case "records":
				cfg.Records = c.Int(name)
			case "bits":
				cfg.Bits = c.Int(name)
			case "shards":
				cfg.Shards = c.Int(name)
			case "seed":
				cfg.Seed = c.String(name)
			}
		}
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	level := log.InfoLevel
	if c.Bool("verbose") {
		level = log.DebugLevel
	}
	logger := log.New(nil, level, c.Bool("json")).Named("mixguard")

	spec, err := bitrow.NewSpec(cfg.Bits, cfg.Bits+32)
	if err != nil {
		return err
	}

	if addr := c.String("metrics"); addr != "" {
		go func() {
			logger.Infow("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
				logger.Errorw("metrics server stopped", "err", err)
			}
		}()
	}

	opts := []mpctest.Option{mpctest.WithLogger(logger)}
	seedSource := int64(1)
	if cfg.Seed != "" {
		raw, err := hex.DecodeString(cfg.Seed)
		if err != nil {
			return fmt.Errorf("decoding seed: %w", err)
		}
		opts = append(opts, mpctest.WithSeed(sha256.Sum256(raw)))
		for _, b := range raw {
			seedSource = seedSource<<8 | int64(b)
		}
	}

	rng := rand.New(rand.NewSource(seedSource))
	rows := make([]bitrow.Row, cfg.Records)
	for i := range rows {
		rows[i] = make(bitrow.Row, spec.RowBytes())
		rng.Read(rows[i])
	}

	logger.Infow("starting shuffle",
		"records", cfg.Records, "row_bits", cfg.Bits, "shards", cfg.Shards)
	start := time.Now()

	var output []bitrow.Row
	if cfg.Shards > 1 {
		output, err = runSharded(cfg.Shards, opts, rng, spec, rows)
	} else {
		output, err = runSingle(opts, rng, spec, rows)
	}
	if err != nil {
		return err
	}

	if !sameMultiset(rows, output) {
		return fmt.Errorf("output is not a permutation of the input")
	}
	logger.Infow("shuffle verified",
		"records", len(output), "elapsed", time.Since(start).String())
	return nil
}

func runSingle(opts []mpctest.Option, rng *rand.Rand, spec bitrow.Spec, rows []bitrow.Row) ([]bitrow.Row, error) {
	world := mpctest.NewWorld(opts...)
	shares := mpctest.SplitRows(rng, rows)

	out, errs := mpctest.Run(context.Background(), world, func(ctx context.Context, pctx protocol.Context) ([]bitrow.Share, error) {
		return shuffle.MaliciousShuffle(ctx, pctx, spec, mpctest.SemiHonestShuffler{}, shares[pctx.Role()])
	})
	if err := mpctest.FirstError(errs[:]...); err != nil {
		return nil, err
	}
	return mpctest.ReconstructRows(out), nil
}

func runSharded(shards int, opts []mpctest.Option, rng *rand.Rand, spec bitrow.Spec, rows []bitrow.Row) ([]bitrow.Row, error) {
	world := mpctest.NewShardedWorld(shards, opts...)

	perShard := make([][3][]bitrow.Share, shards)
	for i, row := range rows {
		s := mpctest.SplitRow(rng, row)
		shard := i % shards
		for p := range s {
			perShard[shard][p] = append(perShard[shard][p], s[p])
		}
	}

	out, errs := mpctest.RunSharded(context.Background(), world, func(ctx context.Context, sctx protocol.ShardedContext) ([]bitrow.Share, error) {
		return shuffle.MaliciousShardedShuffle(ctx, sctx, spec, mpctest.SemiHonestShardedShuffler{}, perShard[sctx.ShardID()][sctx.Role()])
	})
	var output []bitrow.Row
	for shard := range out {
		if err := mpctest.FirstError(errs[shard][:]...); err != nil {
			return nil, err
		}
		output = append(output, mpctest.ReconstructRows(out[shard])...)
	}
	return output, nil
}

func sameMultiset(a, b []bitrow.Row) bool {
	if len(a) != len(b) {
		return false
	}
	ah := make([]string, len(a))
	bh := make([]string, len(b))
	for i := range a {
		ah[i] = hex.EncodeToString(a[i])
		bh[i] = hex.EncodeToString(b[i])
	}
	sort.Strings(ah)
	sort.Strings(bh)
	for i := range ah {
		if ah[i] != bh[i] {
			return false
		}
	}
	return true
}

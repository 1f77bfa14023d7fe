package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cheggaaa/pb/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/xtding233/pullsim/internal/config"
	"github.com/xtding233/pullsim/internal/gacha"
	"github.com/xtding233/pullsim/internal/sim"
)

// parseCategory parses "name:weight[:target]", e.g. "featured:1:1".
func parseCategory(s string) (gacha.Category, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return gacha.Category{}, fmt.Errorf("category %q: want name:weight[:target]", s)
	}
	w, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return gacha.Category{}, fmt.Errorf("category %q: bad weight: %w", s, err)
	}
	c := gacha.Category{Name: parts[0], Weight: w}
	if len(parts) == 3 {
		t, err := strconv.Atoi(parts[2])
		if err != nil {
			return gacha.Category{}, fmt.Errorf("category %q: bad target: %w", s, err)
		}
		c.Target = t
	}
	return c, nil
}

func main() {
	cfgPath := pflag.String("config", "", "path to YAML config file")
	trials := pflag.Uint64("trials", 0, "trial count (0 uses config default)")
	basePity := pflag.Int("base-pity", 0, "pity already banked before the run")
	seed := pflag.Uint64("seed", 0, "RNG seed (0 picks a random one)")
	workers := pflag.Int("workers", 0, "executor pool size (0 uses NumCPU)")
	catFlags := pflag.StringArray("category", nil, "category as name:weight[:target]; repeatable")
	noBatch := pflag.Bool("no-batch", false, "disable the batched backend")
	quiet := pflag.Bool("quiet", false, "suppress the progress bar")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if *trials == 0 {
		*trials = cfg.Run.Trials
	}
	if *workers == 0 {
		*workers = cfg.Workers
	}

	cats := cfg.Run.Categories
	if len(*catFlags) > 0 {
		cats = cats[:0:0]
		for _, s := range *catFlags {
			c, err := parseCategory(s)
			if err != nil {
				log.WithError(err).Fatal("parse category")
			}
			cats = append(cats, c)
		}
	}

	simulator := sim.New(sim.Config{Workers: *workers, Curve: cfg.PityCurve()})
	defer simulator.Close()
	simulator.Backend().SetEnabled(cfg.Backend.Enabled && !*noBatch)

	bar := pb.New64(int64(*trials))
	if *quiet {
		bar.SetWriter(io.Discard)
	}
	bar.Start()

	report, err := simulator.Run(context.Background(), sim.Request{
		Trials:     *trials,
		Categories: cats,
		BasePity:   *basePity,
		Seed:       *seed,
		OnProgress: func(pct float64) {
			bar.SetCurrent(int64(pct / 100 * float64(*trials)))
		},
	})
	bar.Finish()
	if err != nil {
		log.WithError(err).Fatal("run failed")
	}

	c := report.Central
	fmt.Printf("trials      %d\n", report.TotalTrials)
	fmt.Printf("mean        %.2f draws\n", c.Mean)
	fmt.Printf("median      %.0f draws\n", c.Median)
	fmt.Printf("p25 / p75   %.0f / %.0f draws\n", c.P25, c.P75)
	fmt.Printf("sigma       %.2f\n", c.Sigma)
	for k, r := range c.Ranges {
		fmt.Printf("  ±%dσ      [%.1f, %.1f]  %.1f%%\n", k+1, r.Low, r.High, r.Coverage*100)
	}
	fmt.Println("categories:")
	for name, cs := range report.Categories {
		fmt.Printf("  %-12s count=%d  per-100-draws=%.3f\n", name, cs.Count, cs.AveragePer100Draws)
	}
}

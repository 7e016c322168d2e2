// Copyright 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/google/ostree/internal/bench"
	"github.com/google/ostree/internal/config"
	"github.com/google/ostree/metrics"
)

const shutdownTimeout = 5 * time.Second

// flags holds the command line overrides shared by all subcommands.
type flags struct {
	configPath     string
	tree           string
	keys           int
	seed           int64
	deleteFraction float64
	queries        int
	buckets        int
	logLevel       string
	logFormat      string
	metricsAddr    string
	check          bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "ostree-bench",
		Short:         "Benchmarks the ostree order-statistics trees.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML configuration file.")
	pf.StringVar(&f.tree, "tree", config.DefaultTree, "Map to benchmark: balanced, ordered or hashmap.")
	pf.IntVar(&f.keys, "keys", config.DefaultKeys, "Number of random keys to insert.")
	pf.Int64Var(&f.seed, "seed", config.DefaultSeed, "Random seed.")
	pf.Float64Var(&f.deleteFraction, "delete-fraction", config.DefaultDeleteFraction, "Fraction of the inserted keys to delete.")
	pf.IntVar(&f.queries, "queries", config.DefaultQueries, "Number of rank/select/floor/ceiling queries.")
	pf.IntVar(&f.buckets, "buckets", config.DefaultBuckets, "Hash map bucket count.")
	pf.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Logging level.")
	pf.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "Logging format: console or json.")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run.")
	pf.BoolVar(&f.check, "check", config.DefaultCheck, "Verify the tree invariants after the run.")

	root.AddCommand(newRunCmd(f), newConfigCmd(f))
	return root
}

// load merges the flags the user actually set over the configuration file and
// environment.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("tree", "workload.tree", f.tree)
	set("keys", "workload.keys", f.keys)
	set("seed", "workload.seed", f.seed)
	set("delete-fraction", "workload.delete_fraction", f.deleteFraction)
	set("queries", "workload.queries", f.queries)
	set("buckets", "hashmap.buckets", f.buckets)
	set("log-level", "logging.level", f.logLevel)
	set("log-format", "logging.format", f.logFormat)
	set("metrics-addr", "metrics.listen", f.metricsAddr)
	set("check", "check", f.check)
	return config.Load(f.configPath, overrides)
}

func newRunCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs a random insert, query and delete workload.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			log, err := bench.NewLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			b, err := bench.New(cfg, log)
			if err != nil {
				return err
			}

			if cfg.Metrics.Listen != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					metrics.NewCollector(b.Source(), cfg.Metrics.Namespace, prometheus.Labels{"tree": cfg.Workload.Tree}),
					collectors.NewGoCollector(),
				)
				_, shutdown, err := serveMetrics(cfg.Metrics.Listen, reg, log)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			res, err := b.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Table())
			return nil
		},
	}
}

// serveMetrics starts an HTTP server exposing reg on /metrics.  It returns the
// address it listens on and a function that stops it.
func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}, nil
}

func newConfigCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspects the configuration.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Prints the effective configuration as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

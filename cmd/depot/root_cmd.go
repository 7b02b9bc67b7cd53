package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/library"
)

const EnvVariableConfig = "DEPOT_CONFIG"

type rootOpts struct {
	ConfigPath  string
	MetricsAddr string

	Config  *Config
	Library *library.Library
	Logger  log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
depot manages a library of versioned dataset bundles across cache tiers.

Workflow:
  depot sync remote               # Learn what the remotes hold.
  depot list                      # What's in the catalog?
  depot get census                # Materialize a bundle locally.
  depot put ./census-2.0.1.db     # Install a freshly built bundle.
  depot push --all                # Upload everything new upstream.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "depot",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.Library != nil {
				opts.Library.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "depot.yaml",
		fmt.Sprintf("path to the depot config file; you can also set the environment variable %s", EnvVariableConfig))
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "",
		"if set, serve prometheus metrics on this address while the command runs")
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	path := os.Getenv(EnvVariableConfig)
	if cmd.Flags().Changed("config") || path == "" {
		path = opts.ConfigPath
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	opts.Config = cfg

	opts.Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	metrics := cache.NewMetrics()

	if opts.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(opts.MetricsAddr, mux); err != nil {
				opts.Logger.Log("metrics", opts.MetricsAddr, "err", err)
			}
		}()
	}

	opts.Library, err = cfg.build(opts.Logger, metrics)
	return err
}

// upstream picks the remote tier pushes go to: the named one, or the
// first configured remote when the name is empty.
func (opts *rootOpts) upstream(name string) (cache.Tier, error) {
	remotes := opts.Library.Remotes()
	if len(remotes) == 0 {
		return nil, newUsageError("no remotes configured; nothing to push to")
	}
	if name == "" {
		return remotes[0], nil
	}
	for _, r := range remotes {
		if r.SourceID() == name {
			return r, nil
		}
	}
	return nil, newUsageError("no remote with source id " + name)
}

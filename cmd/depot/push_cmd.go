package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type pushOpts struct {
	*rootOpts
	remote    string
	all       bool
	dryRun    bool
	keepGoing bool
}

func newPush(parent *rootOpts) *pushOpts {
	return &pushOpts{rootOpts: parent}
}

func (opts *pushOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "push [REF]",
		Short:   "upload artifacts to an upstream remote",
		Example: "  depot push census-2.0.1\n  depot push --all --keep-going",
		RunE:    opts.RunE,
	}
	cmd.Flags().StringVar(&opts.remote, "remote", "", "source id of the remote to push to (default: the first configured remote)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "push everything the ledger holds in state new")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would be pushed without pushing")
	cmd.Flags().BoolVar(&opts.keepGoing, "keep-going", false, "with --all, continue past per-artifact failures")
	return cmd
}

func (opts *pushOpts) RunE(cmd *cobra.Command, args []string) error {
	upstream, err := opts.upstream(opts.remote)
	if err != nil {
		return err
	}

	if opts.all {
		if len(args) > 0 {
			return errorWantedNoArgs
		}
		sum, err := opts.Library.PushAll(upstream, opts.dryRun, opts.keepGoing, nil)
		if sum != nil {
			printSummary(cmd, sum)
		}
		return err
	}

	if len(args) != 1 {
		return errorWantedOneArg
	}

	progress, finish := newProgressBar()
	res, err := opts.Library.Push(upstream, args[0], opts.dryRun, progress)
	finish()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes in %s)\n", res.Action, res.Key, res.Size, res.Took)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	depsync "github.com/depotproject/depot/sync"
)

type syncOpts struct {
	*rootOpts
}

func newSync(parent *rootOpts) *syncOpts {
	return &syncOpts{rootOpts: parent}
}

func (opts *syncOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "synchronize the catalog with the local cache or the remotes",
	}
}

type syncLocalOpts struct {
	*rootOpts
	clean bool
}

func newSyncLocal(parent *rootOpts) *syncLocalOpts {
	return &syncLocalOpts{rootOpts: parent}
}

func (opts *syncLocalOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "rebuild the catalog from what the local cache holds",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.clean, "clean", false, "purge existing records before the rebuild")
	return cmd
}

func (opts *syncLocalOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	sum, err := opts.Library.SyncLocal(opts.clean)
	if err != nil {
		return err
	}
	printSummary(cmd, sum)
	return nil
}

type syncRemoteOpts struct {
	*rootOpts
	allVersions bool
	clean       bool
}

func newSyncRemote(parent *rootOpts) *syncRemoteOpts {
	return &syncRemoteOpts{rootOpts: parent}
}

func (opts *syncRemoteOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "pull artifacts the catalog hasn't seen from the remotes",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.allVersions, "all-versions", false, "pull every version, not just the latest per artifact")
	cmd.Flags().BoolVar(&opts.clean, "clean", false, "forget previous remote records and re-examine everything")
	return cmd
}

func (opts *syncRemoteOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	sum, err := opts.Library.SyncRemote(nil, !opts.allVersions, opts.clean)
	if err != nil {
		return err
	}
	printSummary(cmd, sum)
	return nil
}

func printSummary(cmd *cobra.Command, sum *depsync.Summary) {
	for _, item := range sum.Items {
		if item.Err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "failed  %s: %s\n", item.Key, item.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s%s\n", item.Action, item.Key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d items, %d failed\n", len(sum.Items), sum.Failed())
}

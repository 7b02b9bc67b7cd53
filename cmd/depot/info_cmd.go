package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type infoOpts struct {
	*rootOpts
}

func newInfo(parent *rootOpts) *infoOpts {
	return &infoOpts{rootOpts: parent}
}

func (opts *infoOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "summarize the library: datasets, ledger states, tiers",
		RunE:  opts.RunE,
	}
}

func (opts *infoOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	info, err := opts.Library.Info()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "datasets:   %d\n", info.Datasets)
	fmt.Fprintf(out, "new:        %d\n", info.New)
	fmt.Fprintf(out, "installed:  %d\n", info.Installed)
	fmt.Fprintf(out, "pushed:     %d\n", info.Pushed)
	fmt.Fprintf(out, "cache dir:  %s\n", info.CacheDir)
	for _, r := range info.Remotes {
		fmt.Fprintf(out, "remote:     %s\n", r)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type getOpts struct {
	*rootOpts
	quiet bool
}

func newGet(parent *rootOpts) *getOpts {
	return &getOpts{rootOpts: parent}
}

func (opts *getOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get REF",
		Short:   "materialize a bundle or partition in the local cache and print its path",
		Example: "  depot get census\n  depot get census-2.0.1\n  depot get people",
		RunE:    opts.RunE,
	}
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "no progress output, print only the path")
	return cmd
}

func (opts *getOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg
	}

	progress, finish := newProgressBar()
	if opts.quiet {
		progress, finish = nil, func() {}
	}

	art, err := opts.Library.Get(args[0], progress)
	finish()
	if err != nil {
		return err
	}
	defer opts.Library.Release(art)

	if !opts.quiet {
		fmt.Fprintf(cmd.OutOrStderr(), "%s\n", art.Identity.VName())
	}
	fmt.Fprintln(cmd.OutOrStdout(), art.Path)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type putOpts struct {
	*rootOpts
	source     string
	partitions bool
	force      bool
}

func newPut(parent *rootOpts) *putOpts {
	return &putOpts{rootOpts: parent}
}

func (opts *putOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put PATH...",
		Short: "install bundle containers into the library",
		RunE:  opts.RunE,
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "source id to attribute the artifacts to (default: the local tier)")
	cmd.Flags().BoolVar(&opts.partitions, "partitions", true, "record the bundles' partition files too")
	cmd.Flags().BoolVar(&opts.force, "force", false, "replace already-installed bundles")
	return cmd
}

func (opts *putOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return newUsageError("expected at least one bundle path")
	}
	for _, path := range args {
		ident, err := opts.Library.Put(path, opts.source, opts.partitions, opts.force)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", ident.VName())
	}
	return nil
}

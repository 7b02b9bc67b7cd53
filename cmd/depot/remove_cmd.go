package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type removeOpts struct {
	*rootOpts
}

func newRemove(parent *rootOpts) *removeOpts {
	return &removeOpts{rootOpts: parent}
}

func (opts *removeOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "remove REF",
		Short: "forget a dataset: catalog rows, ledger records and cached files",
		RunE:  opts.RunE,
	}
}

func (opts *removeOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneArg
	}
	if err := opts.Library.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}

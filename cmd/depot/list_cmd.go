package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depotproject/depot/catalog"
)

type listOpts struct {
	*rootOpts
	allVersions bool
	scope       string
}

func newList(parent *rootOpts) *listOpts {
	return &listOpts{rootOpts: parent}
}

func (opts *listOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list the datasets the catalog knows about",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.allVersions, "all-versions", false, "one line per version instead of latest with a count")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "restrict to one location (library, remote, source)")
	return cmd
}

func (opts *listOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	var scopes []catalog.Location
	if opts.scope != "" {
		scopes = append(scopes, catalog.Location(opts.scope))
	}

	idents, err := opts.Library.List(!opts.allVersions, scopes...)
	if err != nil {
		return err
	}

	out := newTabwriter()
	fmt.Fprintln(out, "NAME\tVID\tVERSION\tOLDER")
	for _, ident := range idents {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d\n", ident.Name, ident.VID, ident.Version.String(), len(ident.OtherVersions))
	}
	out.Flush()
	return nil
}

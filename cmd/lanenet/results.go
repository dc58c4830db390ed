package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/yulon/go-lanenet/store"
)

func newResultsCmd(a *app) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recent match results recorded by the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Path == "" {
				return errors.New("no results database configured")
			}
			st, err := store.Open(a.cfg.Store.Path, a.log)
			if err != nil {
				return err
			}
			defer st.Close()

			results, err := st.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				cmd.Println("no matches recorded")
				return nil
			}
			for _, r := range results {
				printResult(out, r)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "how many results to show")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/bitrise-io/go-deta/base"
	"github.com/spf13/cobra"
)

func newBaseCmd(a *app) *cobra.Command {
	var baseName string

	baseCmd := &cobra.Command{
		Use:   "base",
		Short: "Manage items of a base",
	}
	baseCmd.PersistentFlags().StringVar(&baseName, "base", "", "base name (default from config)")

	open := func() (*base.Base, error) {
		return base.New(a.cfg.BaseOptions(baseName, a.logger))
	}

	baseCmd.AddCommand(
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print an item",
			Args:  cobra.ExactArgs(1),
			RunE: a.runE(func(cmd *cobra.Command, args []string) error {
				b, err := open()
				if err != nil {
					return err
				}
				it, err := b.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, it)
			}),
		},
		&cobra.Command{
			Use:   "put JSON...",
			Short: "Store items, replacing existing ones",
			Args:  cobra.RangeArgs(1, base.MaxPutItems),
			RunE: a.runE(func(cmd *cobra.Command, args []string) error {
				items := make([]base.Item, len(args))
				for i, arg := range args {
					if err := unmarshalArg(arg, &items[i]); err != nil {
						return err
					}
				}
				b, err := open()
				if err != nil {
					return err
				}
				resp, err := b.Put(cmd.Context(), items...)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			}),
		},
		&cobra.Command{
			Use:   "insert JSON",
			Short: "Store an item if its key is not taken",
			Args:  cobra.ExactArgs(1),
			RunE: a.runE(func(cmd *cobra.Command, args []string) error {
				var it base.Item
				if err := unmarshalArg(args[0], &it); err != nil {
					return err
				}
				b, err := open()
				if err != nil {
					return err
				}
				inserted, err := b.Insert(cmd.Context(), it)
				if err != nil {
					return err
				}
				return printJSON(cmd, inserted)
			}),
		},
		&cobra.Command{
			Use:   "update KEY JSON",
			Short: "Apply an update document to an item",
			Long:  `The update document has the optional "set", "increment", "append", "prepend" and "delete" fields.`,
			Args:  cobra.ExactArgs(2),
			RunE: a.runE(func(cmd *cobra.Command, args []string) error {
				var updates base.Updates
				if err := unmarshalArg(args[1], &updates); err != nil {
					return err
				}
				b, err := open()
				if err != nil {
					return err
				}
				return b.Update(cmd.Context(), args[0], updates)
			}),
		},
		&cobra.Command{
			Use:   "rm KEY",
			Short: "Delete an item",
			Args:  cobra.ExactArgs(1),
			RunE: a.runE(func(cmd *cobra.Command, args []string) error {
				b, err := open()
				if err != nil {
					return err
				}
				return b.Delete(cmd.Context(), args[0])
			}),
		},
		newBaseQueryCmd(a, open),
	)

	return baseCmd
}

func newBaseQueryCmd(a *app, open func() (*base.Base, error)) *cobra.Command {
	var opts base.QueryOptions
	var all bool

	cmd := &cobra.Command{
		Use:   "query [JSON...]",
		Short: "Print the items matching any of the queries",
		Args:  cobra.ArbitraryArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			var queries []base.Query
			for _, arg := range args {
				var q base.Query
				if err := unmarshalArg(arg, &q); err != nil {
					return err
				}
				queries = append(queries, q)
			}

			b, err := open()
			if err != nil {
				return err
			}

			if all {
				items, err := b.FetchAll(cmd.Context(), queries, opts.Limit)
				if err != nil {
					return err
				}
				if items == nil {
					items = []base.Item{}
				}
				return printJSON(cmd, items)
			}

			resp, err := b.Query(cmd.Context(), queries, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		}),
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&opts.Last, "last", "", "continue after this key")
	cmd.Flags().BoolVar(&all, "all", false, "follow paging and print every matching item")

	return cmd
}

func unmarshalArg(arg string, v interface{}) error {
	if err := json.Unmarshal([]byte(arg), v); err != nil {
		return fmt.Errorf("parse %q: %w", arg, err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/goforj/normcache"
	"github.com/goforj/normcache/internal/render"
)

func listCmd(opts *globalOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.load(ctx, refresh); err != nil {
					return err
				}
				return a.renderList()
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch from the backend instead of the snapshot")
	return cmd
}

func createCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create a user and print the updated list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.load(ctx, false); err != nil {
					return err
				}
				var form normcache.Form
				form.SetName(args[0])
				return a.submit(ctx, &form)
			})
		},
	}
}

func updateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update ID NAME",
		Short: "Rename a user and print the updated list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.load(ctx, false); err != nil {
					return err
				}
				key, err := normcache.Identify(a.coord.TypeTag(), args[0])
				if err != nil {
					return err
				}
				var form normcache.Form
				if e, ok := a.cache.Entity(key); ok {
					form.Select(e)
				} else {
					form.Select(normcache.Entity{TypeTag: a.coord.TypeTag(), ID: args[0]})
				}
				form.SetName(args[1])
				return a.submit(ctx, &form)
			})
		},
	}
}

func deleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user and print the updated list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.load(ctx, false); err != nil {
					return err
				}
				key, err := normcache.Identify(a.coord.TypeTag(), args[0])
				if err != nil {
					return err
				}
				if err := a.coord.Remove(ctx, key); err != nil {
					return err
				}
				return a.renderList()
			})
		},
	}
}

func seedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Regenerate the list snapshot from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entities, err := a.seeder.Regenerate(ctx)
				if err != nil {
					return err
				}
				if a.format == render.FormatJSON {
					return render.Entities(a.out, slices.Values(entities), a.columns(), a.format)
				}
				fmt.Fprintf(a.out, "seeded %d %s into %q\n", len(entities), a.coord.TypeTag(), a.seeder.Field())
				return nil
			})
		},
	}
}

// submit sends the form through the coordinator and prints the reconciled list.
func (a *app) submit(ctx context.Context, form *normcache.Form) error {
	if !form.CanSubmit() {
		return fmt.Errorf("name must not be empty")
	}
	if _, err := form.Submit(ctx, a.coord); err != nil {
		return err
	}
	return a.renderList()
}

func withApp(cmd *cobra.Command, opts *globalOptions, run func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return run(ctx, a)
}

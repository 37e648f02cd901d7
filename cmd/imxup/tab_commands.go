package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twwat/imxup-sub002/internal/ipc"
)

func newTabsCommand(ctx *commandContext) *cobra.Command {
	tabsCmd := &cobra.Command{
		Use:   "tabs",
		Short: "Manage queue tabs",
	}

	tabsCmd.AddCommand(newTabsListCommand(ctx))
	tabsCmd.AddCommand(newTabsCreateCommand(ctx))
	tabsCmd.AddCommand(newTabsRenameCommand(ctx))
	tabsCmd.AddCommand(newTabsDeleteCommand(ctx))

	return tabsCmd
}

func newTabsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tabs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TabList()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(resp.Tabs))
				for _, tab := range resp.Tabs {
					kind := ""
					if tab.System {
						kind = "system"
					}
					rows = append(rows, []string{strconv.FormatInt(tab.ID, 10), tab.Name, kind})
				}
				table := renderTable(
					[]string{"ID", "Name", "Kind"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newTabsCreateCommand(ctx *commandContext) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:     "create <name>",
		Aliases: []string{"add"},
		Short:   "Create a tab",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TabCreate(args[0], color)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created tab %q (id %d)\n", resp.Tab.Name, resp.Tab.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "Display color hint")
	return cmd
}

func newTabsRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a tab",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tab id %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TabRename(id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed tab %d to %q\n", id, args[1])
				return nil
			})
		},
	}
}

func newTabsDeleteCommand(ctx *commandContext) *cobra.Command {
	var reassignTo int64

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tab, moving its galleries to another tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tab id %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TabDelete(id, reassignTo); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted tab %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&reassignTo, "reassign-to", 1, "Tab that receives the deleted tab's galleries")
	return cmd
}

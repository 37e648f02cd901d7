package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twwat/imxup-sub002/internal/ipc"
	"github.com/twwat/imxup-sub002/internal/store"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var template string
	var tabID int64
	var startAfterScan bool

	cmd := &cobra.Command{
		Use:   "add <folder> [folder...]",
		Short: "Register image folders with the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && name != "" {
				return fmt.Errorf("--name only applies when adding a single folder")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %q: %w", arg, err)
					}
					resp, err := client.Add(ipc.AddRequest{
						Path:     path,
						Name:     name,
						Template: template,
						TabID:    tabID,
						Start:    startAfterScan,
					})
					if err != nil {
						return fmt.Errorf("add %s: %w", path, err)
					}
					fmt.Fprintf(out, "Added %s as %q (id %d)\n", resp.Item.Path, resp.Item.Name, resp.Item.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Gallery name (defaults to a cleaned folder name)")
	cmd.Flags().StringVarP(&template, "template", "t", "", "Forum post template")
	cmd.Flags().Int64Var(&tabID, "tab", 0, "Tab to file the gallery under")
	cmd.Flags().BoolVar(&startAfterScan, "start", false, "Queue the gallery for upload once its scan succeeds")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start [folder...]",
		Short: "Queue galleries for upload (all startable items when no folder is given)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absolutePaths(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start(paths)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %d galleries\n", resp.Started)
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <folder>",
		Short: "Stop an uploading gallery at the next image boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Stop(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for %s\n", path)
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var tabID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued galleries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateStatuses(statuses); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.List(ipc.ListRequest{Statuses: statuses, TabID: tabID})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Items))
				for _, item := range resp.Items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Name,
						item.Status,
						formatImageProgress(item.UploadedImages, item.TotalImages),
						formatBytes(item.TotalBytes),
						item.Path,
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Images", "Size", "Folder"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().Int64Var(&tabID, "tab", 0, "Filter by tab id")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <folder> [folder...]",
		Short: "Remove galleries from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absolutePaths(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Remove(paths)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d galleries\n", resp.Removed)
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every gallery in the given statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(statuses) == 0 {
				return fmt.Errorf("specify at least one --status to clear")
			}
			if err := validateStatuses(statuses); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Clear(statuses)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d galleries\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Status to clear (repeatable)")
	return cmd
}

func newMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <folder> <position>",
		Short: "Move a gallery to a new queue position (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}
			position, err := strconv.Atoi(args[1])
			if err != nil || position < 1 {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Move(path, position-1); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to position %d\n", path, position)
				return nil
			})
		},
	}
}

func absolutePaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", arg, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func validateStatuses(statuses []string) error {
	for _, value := range statuses {
		if _, ok := store.ParseStatus(value); !ok {
			return fmt.Errorf("unknown status %q", value)
		}
	}
	return nil
}

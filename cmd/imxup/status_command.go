package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twwat/imxup-sub002/internal/ipc"
	"github.com/twwat/imxup-sub002/internal/store"
)

var statusDisplayOrder = []store.Status{
	store.StatusValidating,
	store.StatusScanning,
	store.StatusReady,
	store.StatusScanFailed,
	store.StatusQueued,
	store.StatusUploading,
	store.StatusPaused,
	store.StatusIncomplete,
	store.StatusUploadFailed,
	store.StatusCompleted,
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", resp.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, resp.DBPath, colorize))
				if resp.ActivePath != "" {
					fmt.Fprintln(out, renderStatusLine("Uploading", statusOK, resp.ActivePath, colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Uploading", statusInfo, "idle", colorize))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(out, line)
				}
				if resp.Items == 0 {
					fmt.Fprintln(out, renderStatusLine("Items", statusInfo, "empty", colorize))
					return nil
				}
				fmt.Fprintln(out, renderStatusLine("Items", statusInfo, fmt.Sprintf("%d", resp.Items), colorize))
				for _, status := range statusDisplayOrder {
					count := resp.Counts[string(status)]
					if count == 0 {
						continue
					}
					kind := statusKindFor(status)
					fmt.Fprintln(out, renderStatusLine(string(status), kind, fmt.Sprintf("%d", count), colorize))
				}
				return nil
			})
		},
	}
}

func statusKindFor(status store.Status) statusKind {
	switch status {
	case store.StatusCompleted, store.StatusReady:
		return statusOK
	case store.StatusScanFailed, store.StatusUploadFailed:
		return statusError
	case store.StatusIncomplete, store.StatusPaused:
		return statusWarn
	default:
		return statusInfo
	}
}

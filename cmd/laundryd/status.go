package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"laundry-status-exporter/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Log in once and print the current machine statuses",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Pay2Wash.Timeout)
	defer cancel()

	sess, err := client.Authenticate(ctx)
	if err != nil {
		return err
	}
	statuses, err := client.GetMachineStatuses(ctx, sess)
	if err != nil {
		return err
	}

	renderStatuses(os.Stdout, sess.Location, statuses)
	return nil
}

func renderStatuses(w io.Writer, location string, statuses map[string]status.MachineStatus) {
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Location %s", location)
	t.AppendHeader(table.Row{"Machine", "State", "Remaining", "User", "Gateway offline"})
	for _, name := range names {
		ms := statuses[name]
		state, remaining, user := describe(ms)
		t.AppendRow(table.Row{name, state, remaining, user, ms.Raw.GatewayOffline})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func describe(ms status.MachineStatus) (state, remaining, user string) {
	switch s := ms.State.(type) {
	case status.Running:
		remaining = s.RemainingTime.String()
		if !s.Starter.IsNone() {
			user = fmt.Sprint(s.Starter)
		}
		return string(s.Kind()), remaining, user
	case status.Reserved:
		if !s.Reserver.IsNone() {
			user = fmt.Sprint(s.Reserver)
		}
		return string(s.Kind()), "", user
	case nil:
		return fmt.Sprintf("error: %v", ms.Err), "", ""
	default:
		return string(s.Kind()), "", ""
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shuttle/internal/api"
	"shuttle/internal/preflight"
)

var missionStatusOrder = []string{"waiting", "downloading", "stopped", "completed", "failed"}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var local bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and environment checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if local {
				return runLocalStatus(cmd, ctx, asJSON)
			}
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				renderDaemonStatus(out, *status, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run environment checks locally without contacting the daemon")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runKind := statusError
	if status.Running {
		runKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", runKind, yesNo(status.Running), colorize))
	fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("API", statusInfo, status.Bind, colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.QueueDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Assembler", statusInfo, status.Assembler, colorize))
	if status.StagingUsage != "" {
		fmt.Fprintln(out, renderStatusLine("Staging", statusInfo, status.StagingUsage, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Slots", statusInfo,
		fmt.Sprintf("%d of %d in use", status.Active, status.MaxConcurrent), colorize))

	fmt.Fprintln(out)
	rows := make([][]string, 0, len(missionStatusOrder))
	for _, name := range missionStatusOrder {
		rows = append(rows, []string{name, humanize.Comma(int64(status.Counts[name]))})
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Missions"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(status.Dependencies) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Dependencies", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, dep := range status.Dependencies {
			kind, message := dependencyLine(dep)
			fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
		}
	}
}

func dependencyLine(dep api.DependencyStatus) (statusKind, string) {
	if dep.Available {
		return statusOK, dep.Command
	}
	message := strings.TrimSpace(dep.Detail)
	if message == "" {
		message = dep.Command + " not found"
	}
	if dep.Optional {
		return statusWarn, message + " (optional)"
	}
	return statusError, message
}

func runLocalStatus(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	results := preflight.RunAll(cmd.Context(), cfg)
	if asJSON {
		if err := writeJSON(cmd, results); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		colorize := shouldColorize(out)
		for _, line := range renderSectionHeader("Environment", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, result := range results {
			kind := statusOK
			if !result.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
		}
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		return errors.New(strconv.Itoa(len(failed)) + " environment check(s) failed")
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"shuttle/internal/api"
)

const defaultWatchInterval = time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <uid>",
		Short: "Follow a mission until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = defaultWatchInterval
			}
			return ctx.withClient(func(client *api.Client) error {
				return watchMission(cmd, client, args[0], interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", defaultWatchInterval, "Polling interval")
	return cmd
}

func watchMission(cmd *cobra.Command, client *api.Client, uid string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	mission, err := client.Get(cmd.Context(), uid)
	if err != nil {
		return err
	}
	bar := newMissionBar(out, mission.Name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = bar.Set(mission.Percent)
		bar.Describe(watchDescription(*mission))
		if watchFinished(mission.Status) {
			_ = bar.Finish()
			fmt.Fprintln(out)
			return watchResult(out, *mission)
		}
		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(out)
			return cmd.Context().Err()
		case <-ticker.C:
		}
		if mission, err = client.Get(cmd.Context(), uid); err != nil {
			fmt.Fprintln(out)
			return err
		}
	}
}

func newMissionBar(out io.Writer, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(shouldColorize(out)),
	)
}

func watchDescription(m api.Mission) string {
	desc := fmt.Sprintf("%s [%s]", m.Name, m.Status)
	if m.Speed != "" && m.Status == "downloading" {
		desc += " " + m.Speed
	}
	return desc
}

// watchFinished reports whether polling should end. Stopped missions end
// the watch because they only move again on an explicit resume.
func watchFinished(status string) bool {
	switch status {
	case "completed", "failed", "stopped":
		return true
	default:
		return false
	}
}

func watchResult(out io.Writer, m api.Mission) error {
	switch m.Status {
	case "completed":
		fmt.Fprintf(out, "Completed: %s (%s)\n", m.OutputPath, m.Size)
		if len(m.Skipped) > 0 {
			fmt.Fprintf(out, "Skipped %d segments\n", len(m.Skipped))
		}
		return nil
	case "failed":
		return fmt.Errorf("mission %s failed: %s", m.UID, m.Message)
	default:
		fmt.Fprintf(out, "Mission %s is %s\n", m.UID, m.Status)
		return nil
	}
}

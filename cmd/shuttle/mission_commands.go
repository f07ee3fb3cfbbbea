package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shuttle/internal/api"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		name       string
		format     string
		preset     string
		dir        string
		userAgent  string
		headers    []string
		timeSuffix bool
		noSuffix   bool
		threads    int
		retries    int
		skipFailed bool
		insecure   bool
		keepTemp   bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Queue an HLS playlist for download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			req := api.CreateMissionRequest{
				URL:       strings.TrimSpace(args[0]),
				Name:      name,
				Dir:       dir,
				Format:    format,
				Preset:    preset,
				UserAgent: userAgent,
				Headers:   parsed,
				Options: api.MissionOptions{
					Concurrency: threads,
					MaxRetries:  retries,
				},
			}
			switch {
			case timeSuffix && noSuffix:
				return fmt.Errorf("--time-suffix and --no-time-suffix are mutually exclusive")
			case timeSuffix:
				req.TimeSuffix = ptr(true)
			case noSuffix:
				req.TimeSuffix = ptr(false)
			}
			flags := cmd.Flags()
			if flags.Changed("skip-failed") {
				req.Options.SkipFailedSegments = ptr(skipFailed)
			}
			if flags.Changed("insecure") {
				req.Options.InsecureTLS = ptr(insecure)
			}
			if flags.Changed("keep-temp") {
				req.Options.KeepTemp = ptr(keepTemp)
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s) as %s\n", resp.Name, resp.UID, resp.Status)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "Output file name without extension")
	f.StringVarP(&format, "format", "f", "", "Output container format (mp4, mkv, ts, ...)")
	f.StringVar(&preset, "preset", "", "Named encode preset from the configuration")
	f.StringVarP(&dir, "dir", "d", "", "Output directory")
	f.StringVar(&userAgent, "user-agent", "", "User-Agent header for playlist and segment requests")
	f.StringArrayVarP(&headers, "header", "H", nil, "Extra request header as key=value (repeatable)")
	f.BoolVar(&timeSuffix, "time-suffix", false, "Append a timestamp to the output name")
	f.BoolVar(&noSuffix, "no-time-suffix", false, "Never append a timestamp to the output name")
	f.IntVar(&threads, "threads", 0, "Parallel segment downloads (0 uses the configured value)")
	f.IntVar(&retries, "retries", 0, "Retry budget per segment burst (0 uses the configured value)")
	f.BoolVar(&skipFailed, "skip-failed", false, "Skip segments that exhaust retries instead of failing")
	f.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	f.BoolVar(&keepTemp, "keep-temp", false, "Keep downloaded segments after assembly")
	f.BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		page     int
		pageSize int
		status   string
		sortBy   string
		order    string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List missions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.List(cmd.Context(), api.ListQuery{
					Page:     page,
					PageSize: pageSize,
					Status:   status,
					Sort:     sortBy,
					Order:    order,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Missions) == 0 {
					fmt.Fprintln(out, "No missions")
					return nil
				}
				fmt.Fprintln(out, renderMissionTable(resp.Missions))
				fmt.Fprintf(out, "Page %d of %d (%d missions)\n", resp.Page, max(resp.TotalPages, 1), resp.Count)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&page, "page", 1, "Page number")
	f.IntVar(&pageSize, "page-size", 20, "Missions per page")
	f.StringVar(&status, "status", "", "Filter by status (waiting, downloading, stopped, completed, failed)")
	f.StringVar(&sortBy, "sort", "", "Sort field (createdAt, updatedAt, name, status, percent)")
	f.StringVar(&order, "order", "", "Sort order (asc, desc)")
	f.BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Show mission details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				mission, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, mission)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderMissionDetail(*mission))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type controlAction func(*api.Client, *cobra.Command, string) (*api.Mission, error)

func controlPause(c *api.Client, cmd *cobra.Command, uid string) (*api.Mission, error) {
	return c.Pause(cmd.Context(), uid)
}

func controlResume(c *api.Client, cmd *cobra.Command, uid string) (*api.Mission, error) {
	return c.Resume(cmd.Context(), uid)
}

func controlStop(c *api.Client, cmd *cobra.Command, uid string) (*api.Mission, error) {
	return c.Stop(cmd.Context(), uid)
}

func newControlCommand(ctx *commandContext, use, short string, action controlAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <uid>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				for _, uid := range args {
					mission, err := action(client, cmd, uid)
					if err != nil {
						return fmt.Errorf("%s %s: %w", use, uid, err)
					}
					fmt.Fprintf(out, "%s %s: %s\n", mission.UID, mission.Name, mission.Status)
				}
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <uid>...",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete missions and their staging data",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				for _, uid := range args {
					if err := client.Delete(cmd.Context(), uid); err != nil {
						return fmt.Errorf("remove %s: %w", uid, err)
					}
					fmt.Fprintf(out, "Removed %s\n", uid)
				}
				return nil
			})
		},
	}
}

// parseHeaders turns key=value (or "Key: value") pairs into a header map.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, raw := range values {
		// The first separator wins so values may carry the other one.
		sep := strings.IndexAny(raw, ":=")
		if sep < 0 {
			return nil, fmt.Errorf("invalid header %q (expected key=value)", raw)
		}
		key, value := strings.TrimSpace(raw[:sep]), raw[sep+1:]
		if key == "" {
			return nil, fmt.Errorf("invalid header %q (expected key=value)", raw)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

func renderMissionTable(missions []api.Mission) string {
	rows := make([][]string, 0, len(missions))
	for _, m := range missions {
		rows = append(rows, []string{
			m.UID,
			m.Name,
			m.Status,
			strconv.Itoa(m.Percent) + "%",
			m.Speed,
			m.Size,
		})
	}
	return renderTable(
		[]string{"UID", "Name", "Status", "Progress", "Speed", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func renderMissionDetail(m api.Mission) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%-12s %s\n", label+":", value)
	}
	line("UID", m.UID)
	line("Name", m.Name)
	line("URL", m.URL)
	line("Status", m.Status)
	line("Progress", strconv.Itoa(m.Percent)+"%")
	line("Speed", m.Speed)
	line("Size", m.Size)
	line("Timemark", m.Timemark)
	line("Output", m.OutputPath)
	line("Format", m.Format)
	line("Preset", m.Preset)
	line("Message", m.Message)
	if len(m.Skipped) > 0 {
		line("Skipped", fmt.Sprintf("%d segments %v", len(m.Skipped), m.Skipped))
	}
	line("Created", m.CreatedAt)
	line("Updated", m.UpdatedAt)
	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}

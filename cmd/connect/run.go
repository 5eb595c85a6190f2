package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	cerrors "github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/devtools"
	"github.com/vango-dev/connect/pkg/store"
)

func runCmd() *cobra.Command {
	var (
		traceJSON bool
		configDir string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.json>",
		Short: "Run a scenario and print the notification trace",
		Long: `Run a scenario file against a fresh JSON store.

The scenario's consumer tree is mounted, every step is applied in order,
and each derivation, render and notification is printed as it happened.
Parents always appear before their children for the same change.

Steps:
  set      {"op":"set","key":"x","value":1}
  delete   {"op":"delete","key":"x"}
  merge    {"op":"merge","value":{"a":1}}
  props    {"op":"props","consumer":"Row","value":{"label":"b"}}
  unmount  {"op":"unmount","consumer":"Row"}
  reload   {"op":"reload"}

Examples:
  connect run scenario.json
  connect run scenario.json --trace-json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sc, err := LoadScenario(args[0])
			if err != nil {
				return err
			}
			return runScenario(sc, cmd.OutOrStdout(), logger, traceJSON)
		},
	}

	cmd.Flags().BoolVar(&traceJSON, "trace-json", false, "Print trace events as JSON lines")
	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing connect.json")

	return cmd
}

// traceLine is one JSON trace record.
type traceLine struct {
	Step int `json:"step"`
	devtools.Event
}

// tracer prints hub events that have not been printed yet.
type tracer struct {
	hub     *devtools.Hub
	w       io.Writer
	json    bool
	printed int
}

func (t *tracer) header(format string, args ...any) {
	if !t.json {
		fmt.Fprintf(t.w, format+"\n", args...)
	}
}

func (t *tracer) flush(step int) {
	events := t.hub.History()
	for _, ev := range events[t.printed:] {
		if t.json {
			data, _ := json.Marshal(traceLine{Step: step, Event: ev})
			fmt.Fprintln(t.w, string(data))
			continue
		}
		fmt.Fprintf(t.w, "  %s\n", formatEvent(ev))
	}
	t.printed = len(events)
}

// errorLine is the JSON trace record of a failed step.
type errorLine struct {
	Step  int            `json:"step"`
	Type  string         `json:"type"`
	Error *cerrors.Error `json:"error"`
}

func (t *tracer) failure(step int, err error) {
	if !t.json {
		fmt.Fprintf(t.w, "  error: %v\n", err)
		return
	}
	data, merr := json.Marshal(errorLine{Step: step, Type: "error", Error: cerrors.FromError(err, "X003")})
	if merr != nil {
		fmt.Fprintf(t.w, "{\"step\":%d,\"type\":\"error\",\"error\":{\"message\":%q}}\n", step, err.Error())
		return
	}
	fmt.Fprintln(t.w, string(data))
}

func formatEvent(ev devtools.Event) string {
	s := fmt.Sprintf("#%-3d %-8s", ev.Seq, ev.Type)
	switch ev.Type {
	case devtools.EventDispatch:
		s += " " + ev.Action
	case devtools.EventDerive:
		s += fmt.Sprintf(" %s change=%s changed=%t", ev.Name, ev.Change, ev.Changed)
	case devtools.EventRender:
		s += fmt.Sprintf(" %s renders=%d", ev.Name, ev.RenderCount)
	case devtools.EventNotify:
		s += fmt.Sprintf(" %s nested=%d", ev.Name, ev.Nested)
	default:
		s += " " + ev.Name
	}
	if ev.Error != "" {
		s += " error=" + ev.Error
	}
	return s
}

func runScenario(sc *Scenario, w io.Writer, logger *slog.Logger, traceJSON bool) error {
	hub := devtools.NewHub(devtools.WithHistory(-1), devtools.WithHubLogger(logger))
	st := devtools.Track(hub, sc.NewStore(store.WithLogger(logger)))
	t := &tracer{hub: hub, w: w, json: traceJSON}

	t.header("mount")
	tree, err := sc.Mount(st, connect.WithObserver(hub), connect.WithLogger(logger))
	t.flush(0)
	if err != nil {
		return err
	}

	failed := 0
	for i, step := range sc.Steps {
		t.header("step %d: %s", i+1, describeStep(step))
		err := tree.Apply(step)
		t.flush(i + 1)
		if err != nil {
			failed++
			logger.Warn("scenario step failed",
				slog.Int("step", i+1),
				slog.String("op", step.Op),
				slog.Any("error", err))
			t.failure(i+1, err)
		}
	}

	if !traceJSON {
		fmt.Fprintln(w, "consumers")
		for _, line := range tree.Summary() {
			info(w, "%s", line)
		}
	}
	if failed > 0 {
		return cerrors.Newf(cerrors.CategoryCLI, "%d of %d scenario steps failed", failed, len(sc.Steps))
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qsync/internal/formatter"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/desertthunder/qsync/internal/tasks"
	"github.com/desertthunder/qsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// ErrPreconditionFailed reports a write rejected because its expected revision was stale.
var ErrPreconditionFailed = errors.New("precondition failed")

// QueueGet prints the stored queue for --did, or the default labelled as not persisted.
func (r *Runner) QueueGet(ctx context.Context, cmd *cli.Command) error {
	did := cmd.String("did")

	return r.withService(ctx, cmd, false, nil, func(_ *shared.Config, svc *tasks.QueueService) error {
		rec, found, err := svc.GetQueue(ctx, did)
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		data, err := formatter.Render(formatter.NewRecordView(did, rec, found), cmd.String("format"))
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	})
}

// readState loads the state document from --state or --state-file.
func readState(cmd *cli.Command) (json.RawMessage, error) {
	inline, file := cmd.String("state"), cmd.String("state-file")

	switch {
	case inline == "" && file == "":
		return nil, fmt.Errorf("%w: either --state or --state-file must be provided", shared.ErrMissingArgument)
	case inline != "" && file != "":
		return nil, fmt.Errorf("%w: cannot specify both --state and --state-file", shared.ErrInvalidArgument)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read state file: %w", err)
		}
		return json.RawMessage(data), nil
	default:
		return json.RawMessage(inline), nil
	}
}

// QueuePut writes a state document for --did, gated on --if-revision when given.
func (r *Runner) QueuePut(ctx context.Context, cmd *cli.Command) error {
	did := cmd.String("did")

	state, err := readState(cmd)
	if err != nil {
		return err
	}

	var expected *int64
	if cmd.IsSet("if-revision") {
		n := int64(cmd.Int("if-revision"))
		if n < 1 {
			return fmt.Errorf("%w: --if-revision must be at least 1", shared.ErrInvalidArgument)
		}
		expected = &n
	}

	return r.withService(ctx, cmd, true, nil, func(_ *shared.Config, svc *tasks.QueueService) error {
		rec, err := svc.UpdateQueue(ctx, did, state, expected)
		if errors.Is(err, shared.ErrRevisionConflict) {
			return fmt.Errorf("%w: %w; re-read the queue and retry", ErrPreconditionFailed, err)
		}
		if err != nil {
			return fmt.Errorf("failed to write queue: %w", err)
		}

		r.logger.Info("queue written", "did", did, "revision", rec.Revision)
		if cmd.Bool("json") {
			return r.writeJSON(formatter.NewRecordView(did, rec, true), true)
		}
		return r.writePlain("✓ %s now at revision %d\n", did, rec.Revision)
	})
}

// QueueExport writes the queue for --did to a file.
func (r *Runner) QueueExport(ctx context.Context, cmd *cli.Command) error {
	did := cmd.String("did")

	return r.withService(ctx, cmd, false, nil, func(_ *shared.Config, svc *tasks.QueueService) error {
		rec, found, err := svc.GetQueue(ctx, did)
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		path, err := formatter.WriteExport(formatter.NewRecordView(did, rec, found), cmd.String("format"), cmd.String("output"))
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %s to %s\n", did, path)
	})
}

// QueueWatch launches the interactive watcher for --did.
func (r *Runner) QueueWatch(ctx context.Context, cmd *cli.Command) error {
	did := cmd.String("did")

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/qsync-watch.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	return r.withService(ctx, cmd, false, nil, func(config *shared.Config, svc *tasks.QueueService) error {
		sub := r.newSubscriber(config.SideChannel, shared.WithLogger(r.logger, "component", "subscriber"))
		defer sub.Close()

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := sub.Subscribe(wctx, services.ChannelFor(config.SideChannel.ChannelPrefix, did))
		if err != nil {
			r.logger.Warn("live updates unavailable, refresh manually", "error", err)
		}

		model := ui.NewWatchModel(wctx, svc, did, events)
		p := tea.NewProgram(model, tea.WithContext(wctx))

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
}

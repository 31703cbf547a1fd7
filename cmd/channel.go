package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/qsync/internal/formatter"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/desertthunder/qsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ChannelStatus connects the side channel, reports its state and one probe, then follows --ticks heartbeat ticks.
func (r *Runner) ChannelStatus(ctx context.Context, cmd *cli.Command) error {
	ticks := int(cmd.Int("ticks"))
	updates := make(chan tasks.HeartbeatUpdate, max(ticks, 1))

	return r.withService(ctx, cmd, true, updates, func(config *shared.Config, svc *tasks.QueueService) error {
		r.writePlainHeader("Side channel")
		r.writePlain("Address: %s\n", config.SideChannel.Addr)
		r.writePlain("State: %s\n", svc.ChannelState())
		r.writePlain("Probe: %s\n", svc.ProbeChannel(ctx))

		for seen := 0; seen < ticks; seen++ {
			select {
			case <-ctx.Done():
				return nil
			case u := <-updates:
				r.writePlain("%s\n", u.Message)
			}
		}
		return nil
	})
}

// ChannelListen prints change events for --did until the context ends.
func (r *Runner) ChannelListen(ctx context.Context, cmd *cli.Command) error {
	did := cmd.String("did")

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	sub := r.newSubscriber(config.SideChannel, shared.WithLogger(r.logger, "component", "subscriber"))
	defer sub.Close()

	channel := services.ChannelFor(config.SideChannel.ChannelPrefix, did)
	events, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	r.logger.Info("listening for queue changes", "channel", channel)
	for ev := range events {
		if err := r.writePlain("%s\n", formatter.FormatChange(ev)); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return nil
}

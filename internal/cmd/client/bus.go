package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rzbill/eventbus/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// Commands returns every client command, ready to attach to a root.
func Commands(addr AddrFunc) []*cobra.Command {
	return []*cobra.Command{
		newHealthCommand(addr),
		newPublishCommand(addr),
		newChannelsCommand(addr),
		newEventsCommand(addr),
		newPollCommand(addr),
		newCommitCommand(addr),
		newConsumerCommand(addr),
		newOffsetCommand(addr),
		newOverviewCommand(addr),
		newResetCommand(addr),
	}
}

func newHealthCommand(addr AddrFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := newTransport(addr).Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			return nil
		},
	}
}

// newPublishCommand constructs the `publish` subcommand.
func newPublishCommand(addr AddrFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, _ := cmd.Flags().GetString("channel")
			typ, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")
			var payload json.RawMessage
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				payload = json.RawMessage(data)
			}
			ev, err := newTransport(addr).Publish(cmd.Context(), ch, typ, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}
	publishCmd.Flags().StringP("channel", "c", "general", "Channel")
	publishCmd.Flags().StringP("type", "t", "", "Event type")
	publishCmd.Flags().StringP("data", "d", "", "JSON payload")
	return publishCmd
}

func newChannelsCommand(addr AddrFunc) *cobra.Command {
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels with counts and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, _ := cmd.Flags().GetInt64("window-ms")
			sums, err := newTransport(addr).Channels(cmd.Context(), window)
			if err != nil {
				return err
			}
			for _, s := range sums {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tcount=%d\tthroughput=%d\n", s.Name, s.Count, s.Throughput)
			}
			return nil
		},
	}
	channelsCmd.Flags().Int64("window-ms", 0, "Throughput window in ms (0 = server default)")
	return channelsCmd
}

func newEventsCommand(addr AddrFunc) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Read events of a channel after an id, optionally filtered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, _ := cmd.Flags().GetString("channel")
			since, _ := cmd.Flags().GetInt64("since")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			evs, err := newTransport(addr).Events(cmd.Context(), transports.EventsRequest{Channel: ch, Since: since, Filter: filter, Limit: limit})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range evs {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	eventsCmd.Flags().StringP("channel", "c", "general", "Channel")
	eventsCmd.Flags().Int64("since", 0, "Only events with id greater than this")
	eventsCmd.Flags().String("filter", "", `CEL filter, e.g. event_type == "order.created"`)
	eventsCmd.Flags().Int("limit", 0, "Maximum events (0 = all)")
	return eventsCmd
}

// newPollCommand constructs the `poll` subcommand. Autocommits unless --manual.
func newPollCommand(addr AddrFunc) *cobra.Command {
	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the next batch for a consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			ch, _ := cmd.Flags().GetString("channel")
			limit, _ := cmd.Flags().GetInt("limit")
			manual, _ := cmd.Flags().GetBool("manual")
			res, err := newTransport(addr).Poll(cmd.Context(), transports.PollRequest{Consumer: consumer, Channel: ch, Limit: limit, ManualCommit: manual})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	pollCmd.Flags().String("consumer", "", "Consumer name")
	pollCmd.Flags().StringP("channel", "c", "general", "Channel")
	pollCmd.Flags().Int("limit", 0, "Batch size (0 = server maximum)")
	pollCmd.Flags().Bool("manual", false, "Do not advance the cursor")
	_ = pollCmd.MarkFlagRequired("consumer")
	return pollCmd
}

func newCommitCommand(addr AddrFunc) *cobra.Command {
	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Set a consumer's offset to the last processed event id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			ch, _ := cmd.Flags().GetString("channel")
			id, _ := cmd.Flags().GetInt64("id")
			if err := newTransport(addr).Commit(cmd.Context(), consumer, ch, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "committed %s@%s -> %d\n", consumer, ch, id)
			return nil
		},
	}
	commitCmd.Flags().String("consumer", "", "Consumer name")
	commitCmd.Flags().StringP("channel", "c", "general", "Channel")
	commitCmd.Flags().Int64("id", 0, "Last processed event id")
	_ = commitCmd.MarkFlagRequired("consumer")
	_ = commitCmd.MarkFlagRequired("id")
	return commitCmd
}

func newConsumerCommand(addr AddrFunc) *cobra.Command {
	consumerCmd := &cobra.Command{Use: "consumer", Short: "Consumer operations"}
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Rewind a consumer to the start of its channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			ch, _ := cmd.Flags().GetString("channel")
			if err := newTransport(addr).ResetConsumer(cmd.Context(), consumer, ch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s@%s\n", consumer, ch)
			return nil
		},
	}
	resetCmd.Flags().String("consumer", "", "Consumer name")
	resetCmd.Flags().StringP("channel", "c", "general", "Channel")
	_ = resetCmd.MarkFlagRequired("consumer")
	consumerCmd.AddCommand(resetCmd)
	return consumerCmd
}

func newOffsetCommand(addr AddrFunc) *cobra.Command {
	offsetCmd := &cobra.Command{
		Use:   "offset",
		Short: "Show a consumer's committed offset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			ch, _ := cmd.Flags().GetString("channel")
			off, err := newTransport(addr).Offset(cmd.Context(), consumer, ch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), off)
			return nil
		},
	}
	offsetCmd.Flags().String("consumer", "", "Consumer name")
	offsetCmd.Flags().StringP("channel", "c", "general", "Channel")
	_ = offsetCmd.MarkFlagRequired("consumer")
	return offsetCmd
}

func newOverviewCommand(addr AddrFunc) *cobra.Command {
	overviewCmd := &cobra.Command{
		Use:   "overview",
		Short: "Show the monitoring snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, _ := cmd.Flags().GetString("channel")
			snap, err := newTransport(addr).Overview(cmd.Context(), ch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	overviewCmd.Flags().StringP("channel", "c", "", "Channel (default: first with events)")
	return overviewCmd
}

// newResetCommand wipes every channel and consumer. Requires --confirm.
func newResetCommand(addr AddrFunc) *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all events and consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return errors.New("refusing to reset without --confirm")
			}
			if err := newTransport(addr).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reset complete")
			return nil
		},
	}
	resetCmd.Flags().Bool("confirm", false, "Confirm the reset")
	return resetCmd
}

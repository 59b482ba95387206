package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"corecs/internal/recorder"
)

// newSeekCmd describes, rather than performs, a seek: reconstructing a
// repository needs the host's registered component and event types,
// which this standalone binary has no way to know, so seek reports the
// keyframe-plus-deltas plan a host's Reader.SeekTo would execute.
func newSeekCmd(logger *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seek <recording> <tick>",
		Short: "Show the keyframe-plus-deltas plan for seeking to a tick",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("parse tick: %w", err)
			}
			kfTick, deltas, err := recorder.SeekPlan(args[0], uint32(target))
			if err != nil {
				return fmt.Errorf("plan seek: %w", err)
			}
			logger.Info().
				Uint32("target_tick", uint32(target)).
				Uint32("keyframe_tick", kfTick).
				Int("delta_count", len(deltas)).
				Interface("delta_ticks", deltas).
				Msg("seek plan")
			return nil
		},
	}
}

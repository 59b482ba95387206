package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"corecs/internal/recorder"
)

func newInspectCmd(logger *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <recording>",
		Short: "Print a recording's sidecar metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := recorder.ReadMetadata(args[0])
			if err != nil {
				return fmt.Errorf("read metadata: %w", err)
			}
			logger.Info().
				Str("session_id", meta.SessionID.String()).
				Uint32("protocol_version", meta.ProtocolVersion).
				Str("app_version", meta.AppVersion).
				Uint32("start_tick", meta.StartTick).
				Int("frame_count", meta.FrameCount).
				Bool("compressed", meta.Compressed).
				Dur("duration", meta.Duration).
				Interface("tags", meta.Tags).
				Msg("recording metadata")
			return nil
		},
	}
}

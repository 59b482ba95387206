package recorder

import (
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Metadata is the sidecar file written alongside a recording (spec §6.1:
// "protocol version, app version, frame count, wall-clock duration,
// custom string tags"), kept as its own small YAML document rather than
// a trailing blob so `recorder inspect` can read it without parsing the
// binary stream at all.
type Metadata struct {
	SessionID       uuid.UUID         `yaml:"session_id"`
	ProtocolVersion uint32            `yaml:"protocol_version"`
	AppVersion      string            `yaml:"app_version"`
	StartTick       uint32            `yaml:"start_tick"`
	FrameCount      int               `yaml:"frame_count"`
	Compressed      bool              `yaml:"compressed"`
	Duration        time.Duration     `yaml:"duration"`
	Tags            map[string]string `yaml:"tags,omitempty"`
}

func sidecarPath(recordingPath string) string { return recordingPath + ".meta.yaml" }

func indexPath(recordingPath string) string { return recordingPath + ".idx" }

func writeMetadata(path string, m Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(path), data, 0o644)
}

// ReadMetadata loads a recording's sidecar metadata without touching the
// binary frame stream, for `recorder inspect`.
func ReadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, nil
}

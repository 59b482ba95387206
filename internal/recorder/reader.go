package recorder

import (
	"bufio"
	"io"
	"os"

	"corecs/internal/chunk"
	"corecs/internal/errs"
	"corecs/internal/repo"
)

// Reader plays back a recording sequentially via ApplyFrame, or jumps
// directly to a tick via SeekTo using the sidecar bbolt index (spec §6.2).
type Reader struct {
	f     *os.File
	br    *bufio.Reader
	idx   *frameIndex
	codec *codec

	StartTick uint32
}

// Open opens path for reading, validating the global header (spec §6.1).
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)

	got, err := readU32(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	if got != magic {
		f.Close()
		return nil, errs.New(errs.RecordingCorrupt, "recording file does not start with the expected magic number")
	}
	version, err := readU32(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	if version != formatVersion {
		f.Close()
		return nil, errs.New(errs.RecordingCorrupt, "recording file has an unsupported protocol version")
	}
	startTick64, err := readU64(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	compressedFlag, err := readU8(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	var reserved [7]byte
	if _, err := io.ReadFull(br, reserved[:]); err != nil {
		f.Close()
		return nil, err
	}

	idx, err := openFrameIndexReadOnly(indexPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}

	var c *codec
	if compressedFlag == 1 {
		c, err = newCodec()
		if err != nil {
			idx.close()
			f.Close()
			return nil, err
		}
	}

	return &Reader{f: f, br: br, idx: idx, codec: c, StartTick: uint32(startTick64)}, nil
}

// Close releases the underlying file and index handles.
func (rd *Reader) Close() error {
	if rd.codec != nil {
		rd.codec.close()
	}
	firstErr := rd.idx.close()
	if err := rd.f.Close(); firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (rd *Reader) seekFile(offset int64) error {
	if _, err := rd.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	rd.br = bufio.NewReader(rd.f)
	return nil
}

// ApplyFrame reads exactly one frame from the reader's current position
// and applies it to r: destructions are consumed (the header chunks
// already carry post-destruction state byte-for-byte), event streams are
// cleared then the frame's events injected, singletons and component
// chunks are restored, and r's tick is set to the frame's tick (spec
// §6.2 apply_frame). Returns io.EOF once the stream is exhausted.
func (rd *Reader) ApplyFrame(r *repo.Repository) (uint32, FrameKind, error) {
	tick64, err := readU64(rd.br)
	if err != nil {
		return 0, 0, err
	}
	kindByte, err := readU8(rd.br)
	if err != nil {
		return 0, 0, err
	}
	kind := FrameKind(kindByte)
	tick := uint32(tick64)

	destructionCount, err := readI32(rd.br)
	if err != nil {
		return 0, 0, err
	}
	for i := int32(0); i < destructionCount; i++ {
		if _, err := readI32(rd.br); err != nil {
			return 0, 0, err
		}
		if _, err := readU16(rd.br); err != nil {
			return 0, 0, err
		}
	}

	r.ClearCurrentEvents()
	eventCount, err := readI32(rd.br)
	if err != nil {
		return 0, 0, err
	}
	for i := int32(0); i < eventCount; i++ {
		ordinal, err := readI32(rd.br)
		if err != nil {
			return 0, 0, err
		}
		data, err := readBlob(rd.br)
		if err != nil {
			return 0, 0, err
		}
		if err := r.DecodeAndInjectEvent(int(ordinal), data); err != nil {
			return 0, 0, err
		}
	}

	singletonCount, err := readI32(rd.br)
	if err != nil {
		return 0, 0, err
	}
	for i := int32(0); i < singletonCount; i++ {
		ordinal, err := readI32(rd.br)
		if err != nil {
			return 0, 0, err
		}
		data, err := readBlob(rd.br)
		if err != nil {
			return 0, 0, err
		}
		if err := r.RestoreSingleton(int(ordinal), data); err != nil {
			return 0, 0, err
		}
	}

	chunkCount, err := readI32(rd.br)
	if err != nil {
		return 0, 0, err
	}
	for i := int32(0); i < chunkCount; i++ {
		ordinal, err := readI32(rd.br)
		if err != nil {
			return 0, 0, err
		}
		chunkID, err := readI32(rd.br)
		if err != nil {
			return 0, 0, err
		}
		data, err := readBlob(rd.br)
		if err != nil {
			return 0, 0, err
		}
		if rd.codec != nil {
			data, err = rd.codec.decompress(data, chunk.ChunkBytes)
			if err != nil {
				return 0, 0, err
			}
		}
		if ordinal == HeaderOrdinal {
			err = r.RestoreHeaderChunk(int(chunkID), data)
		} else {
			err = r.RestorePlainChunk(int(ordinal), int(chunkID), data)
		}
		if err != nil {
			return 0, 0, err
		}
	}

	refCount, err := readI32(rd.br)
	if err != nil {
		return 0, 0, err
	}
	for i := int32(0); i < refCount; i++ {
		ordinal, err := readI32(rd.br)
		if err != nil {
			return 0, 0, err
		}
		data, err := readBlob(rd.br)
		if err != nil {
			return 0, 0, err
		}
		if err := r.RestoreRefSnapshot(int(ordinal), data, tick); err != nil {
			return 0, 0, err
		}
	}

	r.RestoreTick(tick)
	return tick, kind, nil
}

// SeekTo reconstructs r to be bit-equivalent to end-of-frame-target
// state: the latest keyframe at or before target, then every delta up
// to and including target, in tick order (spec §6.2 seek_to).
func (rd *Reader) SeekTo(r *repo.Repository, target uint32) error {
	offset, kfTick, found, err := rd.idx.latestKeyframeAtOrBefore(target)
	if err != nil {
		return err
	}
	if !found {
		return errs.New(errs.RecordingCorrupt, "no keyframe at or before the requested tick")
	}
	if err := rd.seekFile(offset); err != nil {
		return err
	}
	if _, _, err := rd.ApplyFrame(r); err != nil {
		return err
	}
	if kfTick == target {
		return nil
	}
	offsets, err := rd.idx.deltasAfter(kfTick, target)
	if err != nil {
		return err
	}
	for _, off := range offsets {
		if err := rd.seekFile(off); err != nil {
			return err
		}
		if _, _, err := rd.ApplyFrame(r); err != nil {
			return err
		}
	}
	return nil
}

func readShortString(r io.Reader) (string, error) {
	n, err := readU16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

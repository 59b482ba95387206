package recorder

import (
	"bufio"
	"errors"
	"io"
	"os"

	"corecs/internal/errs"
)

// FrameSummary describes one frame's structural shape without decoding
// any typed payload, for `recorder verify`/`recorder inspect` to report
// on a recording without the caller having registered any component or
// event types.
type FrameSummary struct {
	Tick              uint32
	Kind              FrameKind
	Destructions      int
	EventStreams      int
	Singletons        int
	ComponentChunks   int
	ReferenceOrdinals int
}

// Verify walks every frame in path structurally, validating the global
// header and every length-prefixed section without requiring any
// registered types, and returns one FrameSummary per frame in file order.
// A frame whose section lengths are inconsistent with the bytes actually
// present surfaces errs.RecordingCorrupt.
func Verify(path string) ([]FrameSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)

	if _, err := readU32(br); err != nil {
		return nil, err
	}
	if _, err := readU32(br); err != nil {
		return nil, err
	}
	if _, err := readU64(br); err != nil {
		return nil, err
	}
	if _, err := readU8(br); err != nil {
		return nil, err
	}
	var reserved [7]byte
	if _, err := io.ReadFull(br, reserved[:]); err != nil {
		return nil, err
	}

	var out []FrameSummary
	for {
		summary, err := verifyFrame(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func verifyFrame(br *bufio.Reader) (fs FrameSummary, err error) {
	tick64, err := readU64(br)
	if err != nil {
		return fs, err
	}
	// Once a frame has started, running out of bytes anywhere inside it is
	// corruption, not a clean end of the recording.
	defer func() {
		var ecsErr *errs.ECSError
		if err != nil && !errors.As(err, &ecsErr) {
			err = errs.New(errs.RecordingCorrupt, "truncated frame")
		}
	}()
	kind, err := readU8(br)
	if err != nil {
		return fs, io.ErrUnexpectedEOF
	}
	fs.Tick = uint32(tick64)
	fs.Kind = FrameKind(kind)

	destructions, err := readI32(br)
	if err != nil {
		return fs, err
	}
	fs.Destructions = int(destructions)
	for i := int32(0); i < destructions; i++ {
		if _, err := readI32(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated destruction entry")
		}
		if _, err := readU16(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated destruction entry")
		}
	}

	events, err := skipOrdinalBlobSection(br)
	if err != nil {
		return fs, err
	}
	fs.EventStreams = events

	singletons, err := skipOrdinalBlobSection(br)
	if err != nil {
		return fs, err
	}
	fs.Singletons = singletons

	chunkCount, err := readI32(br)
	if err != nil {
		return fs, err
	}
	fs.ComponentChunks = int(chunkCount)
	for i := int32(0); i < chunkCount; i++ {
		if _, err := readI32(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated chunk entry")
		}
		if _, err := readI32(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated chunk entry")
		}
		if _, err := readBlob(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated chunk payload")
		}
	}

	refCount, err := readI32(br)
	if err != nil {
		return fs, err
	}
	fs.ReferenceOrdinals = int(refCount)
	for i := int32(0); i < refCount; i++ {
		if _, err := readI32(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated reference entry")
		}
		if _, err := readBlob(br); err != nil {
			return fs, errs.New(errs.RecordingCorrupt, "truncated reference payload")
		}
	}

	return fs, nil
}

func skipOrdinalBlobSection(br *bufio.Reader) (int, error) {
	count, err := readI32(br)
	if err != nil {
		return 0, err
	}
	for i := int32(0); i < count; i++ {
		if _, err := readI32(br); err != nil {
			return 0, errs.New(errs.RecordingCorrupt, "truncated section key")
		}
		if _, err := readBlob(br); err != nil {
			return 0, errs.New(errs.RecordingCorrupt, "truncated section payload")
		}
	}
	return int(count), nil
}

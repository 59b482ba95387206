package recorder

import (
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"corecs/internal/repo"
)

// Writer appends frames to a recording file, maintaining a bbolt-backed
// tick -> offset index alongside it for seek_to (spec §6.1, §6.2).
type Writer struct {
	path string
	f    *os.File
	bw   bufferedWriter
	cw   *countingWriter
	idx  *frameIndex

	codec      *codec
	sessionID  uuid.UUID
	startTick  uint32
	frameCount int
	startedAt  time.Time
	appVersion string
	tags       map[string]string
}

// bufferedWriter is the narrow slice of *bufio.Writer this package needs,
// named so writer.go doesn't have to import bufio just to spell the type.
type bufferedWriter interface {
	Write(p []byte) (int, error)
	Flush() error
}

// Create opens path for writing a new recording starting at startTick.
// When compress is true, every component chunk payload is zstd-encoded
// before being written (spec §6.1: "a compressed representation").
func Create(path string, startTick uint32, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	idx, err := openFrameIndex(indexPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	var c *codec
	if compress {
		c, err = newCodec()
		if err != nil {
			idx.close()
			f.Close()
			return nil, err
		}
	}
	bw, cw := newBufferedCountingWriter(f)
	w := &Writer{
		path:      path,
		f:         f,
		bw:        bw,
		cw:        cw,
		idx:       idx,
		codec:     c,
		sessionID: uuid.New(),
		startTick: startTick,
		startedAt: time.Now(),
		tags:      make(map[string]string),
	}
	if err := w.writeGlobalHeader(); err != nil {
		w.abort()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeGlobalHeader() error {
	if err := writeU32(w.bw, magic); err != nil {
		return err
	}
	if err := writeU32(w.bw, formatVersion); err != nil {
		return err
	}
	if err := writeU64(w.bw, uint64(w.startTick)); err != nil {
		return err
	}
	compressedFlag := uint8(0)
	if w.codec != nil {
		compressedFlag = 1
	}
	if err := writeU8(w.bw, compressedFlag); err != nil {
		return err
	}
	var reserved [7]byte
	if _, err := w.bw.Write(reserved[:]); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *Writer) abort() {
	w.idx.close()
	w.f.Close()
}

// SetAppVersion records the host application's version string in the
// sidecar metadata written on Close.
func (w *Writer) SetAppVersion(v string) { w.appVersion = v }

// SetTag attaches a custom string tag to the sidecar metadata.
func (w *Writer) SetTag(key, value string) { w.tags[key] = value }

// WriteKeyframe writes a self-contained frame holding every committed
// chunk, every reference type with at least one entry, and every set
// singleton (spec §6.1: "keyframes are self-contained").
func (w *Writer) WriteKeyframe(r *repo.Repository) error {
	return w.writeFrame(r, FrameKeyframe, 0)
}

// WriteDelta writes a frame holding chunks whose version exceeded
// sinceTick, this frame's destructions and events, and a full dump of
// every reference type with at least one entry, changed or not (spec
// §6.1). Singletons are written only in keyframes.
func (w *Writer) WriteDelta(r *repo.Repository, sinceTick uint32) error {
	return w.writeFrame(r, FrameDelta, sinceTick)
}

type chunkPayload struct {
	ordinal int32
	chunkID int32
	data    []byte
}

func (w *Writer) writeFrame(r *repo.Repository, kind FrameKind, sinceTick uint32) error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	offset := w.cw.n
	tick := r.CurrentTick()

	if err := writeU64(w.bw, uint64(tick)); err != nil {
		return err
	}
	if err := writeU8(w.bw, uint8(kind)); err != nil {
		return err
	}

	destructions := r.DrainDestructions()
	if err := writeI32(w.bw, int32(len(destructions))); err != nil {
		return err
	}
	for _, h := range destructions {
		if err := writeI32(w.bw, h.Index); err != nil {
			return err
		}
		if err := writeU16(w.bw, h.Generation); err != nil {
			return err
		}
	}

	// Event section (spec §6.1): per stream kind in order (plain streams,
	// then reference streams), each stream addressed by its process-stable
	// type_ordinal rather than a name string. EncodeCurrentFrameEvents
	// already returns frames in that tier-then-ordinal order.
	events, err := r.EncodeCurrentFrameEvents()
	if err != nil {
		return err
	}
	if err := writeI32(w.bw, int32(len(events))); err != nil {
		return err
	}
	for _, f := range events {
		if err := writeI32(w.bw, int32(f.Ordinal)); err != nil {
			return err
		}
		if err := writeBlob(w.bw, f.Data); err != nil {
			return err
		}
	}

	var singletonOrdinals []int
	var singletons map[int][]byte
	if kind == FrameKeyframe {
		singletons, err = r.SingletonSnapshot()
		if err != nil {
			return err
		}
		singletonOrdinals = sortedIntKeys(singletons)
	}
	if err := writeI32(w.bw, int32(len(singletonOrdinals))); err != nil {
		return err
	}
	for _, ord := range singletonOrdinals {
		if err := writeI32(w.bw, int32(ord)); err != nil {
			return err
		}
		if err := writeBlob(w.bw, singletons[ord]); err != nil {
			return err
		}
	}

	payloads, err := w.collectChunkPayloads(r, kind, sinceTick)
	if err != nil {
		return err
	}
	if err := writeI32(w.bw, int32(len(payloads))); err != nil {
		return err
	}
	for _, p := range payloads {
		data := p.data
		if w.codec != nil {
			data = w.codec.compress(data)
		}
		if err := writeI32(w.bw, p.ordinal); err != nil {
			return err
		}
		if err := writeI32(w.bw, p.chunkID); err != nil {
			return err
		}
		if err := writeBlob(w.bw, data); err != nil {
			return err
		}
	}

	var refOrdinals []int
	for _, ord := range r.RefOrdinals() {
		has, err := r.RefHasEntries(ord)
		if err != nil {
			return err
		}
		if has {
			refOrdinals = append(refOrdinals, ord)
		}
	}
	if err := writeI32(w.bw, int32(len(refOrdinals))); err != nil {
		return err
	}
	for _, ord := range refOrdinals {
		data, err := r.RefSnapshot(ord)
		if err != nil {
			return err
		}
		if err := writeI32(w.bw, int32(ord)); err != nil {
			return err
		}
		if err := writeBlob(w.bw, data); err != nil {
			return err
		}
	}

	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.idx.put(tick, offset, kind); err != nil {
		return err
	}
	w.frameCount++
	return nil
}

// collectChunkPayloads gathers every (ordinal, chunk_id, bytes) entry for
// this frame: the header table under the reserved ordinal -1, then every
// registered plain type in ordinal order. A keyframe walks every chunk;
// a delta walks only chunks whose version exceeded sinceTick. Chunks
// with no backing pages yet are omitted entirely rather than padded with
// zero bytes, since an uncommitted chunk on replay is indistinguishable
// from one that was never written.
func (w *Writer) collectChunkPayloads(r *repo.Repository, kind FrameKind, sinceTick uint32) ([]chunkPayload, error) {
	var out []chunkPayload

	var headerChunks []int
	if kind == FrameKeyframe {
		for c := 0; c < r.HeaderChunkCount(); c++ {
			headerChunks = append(headerChunks, c)
		}
	} else {
		headerChunks = r.HeaderDirtyChunks(sinceTick)
	}
	for _, c := range headerChunks {
		data, _, committed, err := r.HeaderChunkSnapshot(c)
		if err != nil {
			return nil, err
		}
		if !committed {
			continue
		}
		out = append(out, chunkPayload{ordinal: HeaderOrdinal, chunkID: int32(c), data: data})
	}

	for _, ord := range r.PlainOrdinals() {
		var chunks []int
		if kind == FrameKeyframe {
			n, err := r.PlainChunkCount(ord)
			if err != nil {
				return nil, err
			}
			for c := 0; c < n; c++ {
				chunks = append(chunks, c)
			}
		} else {
			dirty, err := r.PlainDirtyChunks(ord, sinceTick)
			if err != nil {
				return nil, err
			}
			chunks = dirty
		}
		for _, c := range chunks {
			data, err := r.PlainChunkSnapshot(ord, c)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue
			}
			out = append(out, chunkPayload{ordinal: int32(ord), chunkID: int32(c), data: data})
		}
	}
	return out, nil
}

// Close flushes and finalizes the recording, writing the sidecar
// metadata file and closing the tick index.
func (w *Writer) Close() (Metadata, error) {
	if w.codec != nil {
		w.codec.close()
	}
	if err := w.bw.Flush(); err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		SessionID:       w.sessionID,
		ProtocolVersion: formatVersion,
		AppVersion:      w.appVersion,
		StartTick:       w.startTick,
		FrameCount:      w.frameCount,
		Compressed:      w.codec != nil,
		Duration:        time.Since(w.startedAt),
		Tags:            w.tags,
	}
	if err := writeMetadata(w.path, meta); err != nil {
		return meta, err
	}
	if err := w.idx.close(); err != nil {
		return meta, err
	}
	if err := w.f.Close(); err != nil {
		return meta, err
	}
	return meta, nil
}

func sortedIntKeys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

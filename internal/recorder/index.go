package recorder

import (
	"encoding/binary"

	"go.etcd.io/bbolt"
)

// indexBucket holds the tick -> frame-offset mapping backing O(log n)
// seeks. This index is the module's only bbolt store (internal/repo has
// no equivalent need, since live state is always in memory).
var indexBucket = []byte("frames")

// frameIndex wraps a bbolt database mapping big-endian tick -> byte
// offset of that frame's header within the recording file.
type frameIndex struct {
	db *bbolt.DB
}

func openFrameIndex(path string) (*frameIndex, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &frameIndex{db: db}, nil
}

func openFrameIndexReadOnly(path string) (*frameIndex, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &frameIndex{db: db}, nil
}

func tickKey(tick uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], tick)
	return key[:]
}

func (fi *frameIndex) put(tick uint32, offset int64, kind FrameKind) error {
	return fi.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		var value [9]byte
		binary.BigEndian.PutUint64(value[:8], uint64(offset))
		value[8] = byte(kind)
		return b.Put(tickKey(tick), value[:])
	})
}

// latestKeyframeAtOrBefore returns the offset of the latest keyframe whose
// tick is <= target, for seek_to's reconstruction (spec §6.2).
func (fi *frameIndex) latestKeyframeAtOrBefore(target uint32) (offset int64, tick uint32, found bool, err error) {
	err = fi.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		k, v := c.Seek(tickKey(target))
		if k == nil {
			k, v = c.Last()
		} else if binary.BigEndian.Uint32(k) > target {
			k, v = c.Prev()
		}
		for k != nil {
			if v[8] == byte(FrameKeyframe) {
				offset = int64(binary.BigEndian.Uint64(v[:8]))
				tick = binary.BigEndian.Uint32(k)
				found = true
				return nil
			}
			k, v = c.Prev()
		}
		return nil
	})
	return offset, tick, found, err
}

// deltasAfter returns the offsets of every delta frame with tick in
// (afterTick, target], in ascending tick order.
func (fi *frameIndex) deltasAfter(afterTick, target uint32) (offsets []int64, err error) {
	err = fi.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		for k, v := c.Seek(tickKey(afterTick + 1)); k != nil; k, v = c.Next() {
			tick := binary.BigEndian.Uint32(k)
			if tick > target {
				break
			}
			offsets = append(offsets, int64(binary.BigEndian.Uint64(v[:8])))
		}
		return nil
	})
	return offsets, err
}

// tickRange returns every tick in [from, to], ascending, regardless of
// frame kind, for tooling that wants to describe a seek plan by tick
// rather than by file offset.
func (fi *frameIndex) tickRange(from, to uint32) (ticks []uint32, err error) {
	err = fi.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		for k, _ := c.Seek(tickKey(from)); k != nil; k, _ = c.Next() {
			tick := binary.BigEndian.Uint32(k)
			if tick > to {
				break
			}
			ticks = append(ticks, tick)
		}
		return nil
	})
	return ticks, err
}

func (fi *frameIndex) close() error { return fi.db.Close() }

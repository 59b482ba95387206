package recorder

import "github.com/klauspost/compress/zstd"

// codec wraps a shared zstd encoder/decoder pair, used when the writer is
// configured to compress component chunk payloads (spec §6.1: "a
// compressed representation"). Chunks are already sanitized and mostly
// zero-filled around live elements, so zstd's dictionary-free mode still
// gets a useful ratio without per-frame dictionary training.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) compress(data []byte) []byte {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)))
}

func (c *codec) decompress(data []byte, sizeHint int) ([]byte, error) {
	return c.dec.DecodeAll(data, make([]byte, 0, sizeHint))
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

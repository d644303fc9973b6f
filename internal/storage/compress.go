package storage

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// codec wraps a reusable zstd encoder/decoder pair, the same "compress
// the columnar block before it hits disk" idiom sneller applies to its
// own block storage.
type codec struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec(level int) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) compress(data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.EncodeAll(data, nil)
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dec.DecodeAll(data, nil)
}

func (c *codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.enc.Close()
	c.dec.Close()
}

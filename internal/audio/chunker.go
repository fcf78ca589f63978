package audio

import "time"

// Chunker turns raw reads from an encoded container stream into ordered
// Chunks. The first chunk it produces for a session is flagged as the
// header chunk. Not safe for concurrent use; a single reader goroutine
// owns it.
type Chunker struct {
	seq int
}

// NewChunker creates a chunker for a fresh capture session.
func NewChunker() *Chunker {
	return &Chunker{}
}

// Next wraps the given bytes in the next Chunk of the session. The data is
// copied so the caller may reuse its read buffer.
func (c *Chunker) Next(data []byte, now time.Time) Chunk {
	buf := make([]byte, len(data))
	copy(buf, data)

	chunk := Chunk{
		Data:   buf,
		Seq:    c.seq,
		Header: c.seq == 0,
		Time:   now,
	}
	c.seq++
	return chunk
}

// Count returns the number of chunks produced so far.
func (c *Chunker) Count() int {
	return c.seq
}

package recordbin

import "sync"

// maxPooledBuffer keeps unusually large buffers from pinning memory in the pool.
const maxPooledBuffer = 1 << 20

var bufferPool = &sync.Pool{
	New: func() any {
		return &Buffer{Buf: make([]byte, 0, 1024)}
	},
}

func getBuffer() *Buffer {
	b := bufferPool.Get().(*Buffer)
	b.Reset()
	return b
}

func releaseBuffer(b *Buffer) {
	if cap(b.Buf) > maxPooledBuffer {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}

// detach copies the written prefix out of a pooled buffer.
func detach(b *Buffer) []byte {
	out := make([]byte, b.Off)
	copy(out, b.Buf[:b.Off])
	return out
}

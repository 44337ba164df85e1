package machine

import (
	"io"
	"sync"
)

// MemFile is a file kept in memory.
type MemFile struct {
	lock sync.RWMutex
	data []byte
}

// NewMemFile creates a file holding a copy of data.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{data: append([]byte(nil), data...)}
}

// ReadAt implements io.ReaderAt.
func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}

	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// WriteAt implements io.WriterAt. The file grows as needed.
func (f *MemFile) WriteAt(p []byte, off int64) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}

	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}

	return copy(f.data[off:], p), nil
}

// Size returns the length of the file.
func (f *MemFile) Size() int64 {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return int64(len(f.data))
}

// Bytes returns a copy of the content.
func (f *MemFile) Bytes() []byte {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return append([]byte(nil), f.data...)
}

// Truncate cuts the file to size bytes.
func (f *MemFile) Truncate(size int64) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	}
}

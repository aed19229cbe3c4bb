package cachew

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// persistBuffer writes an in-memory buffer to path through a writable
// memory map: the file is created and sized to the buffer, mapped, copied
// into, and flushed. This is not fsync-then-rename durable; a torn pack or
// index is garbage until the next successful build overwrites it.
func persistBuffer(data []byte, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	copy(m, data)
	if err := m.Flush(); err != nil {
		m.Unmap()
		return err
	}
	return m.Unmap()
}

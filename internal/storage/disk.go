package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager is the disk collaborator: synchronous fixed-size page reads
// and writes keyed by (fd, page number). It hands out small integer file
// descriptors of its own so callers never touch *os.File directly.
type DiskManager struct {
	mu     sync.Mutex
	files  map[int]*os.File
	nextFD int
}

func NewDiskManager() *DiskManager {
	return &DiskManager{
		files:  make(map[int]*os.File),
		nextFD: 1,
	}
}

// CreateFile creates an empty file at path. It fails if the file exists.
func (d *DiskManager) CreateFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, FileMode0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("create file: %w", err)
	}
	return f.Close()
}

// DestroyFile removes the file at path. The file must not be open.
func (d *DiskManager) DestroyFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("destroy file: %w", err)
	}
	return nil
}

// OpenFile opens an existing file and returns its descriptor.
func (d *DiskManager) OpenFile(path string) (int, error) {
	f, err := os.OpenFile(path, os.O_RDWR, FileMode0644)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return -1, fmt.Errorf("open file: %w", err)
	}

	d.mu.Lock()
	fd := d.nextFD
	d.nextFD++
	d.files[fd] = f
	d.mu.Unlock()

	return fd, nil
}

// CloseFile closes the descriptor. Pending cached pages must be flushed by
// the caller first; close itself does not write anything.
func (d *DiskManager) CloseFile(fd int) error {
	d.mu.Lock()
	f, ok := d.files[fd]
	if ok {
		delete(d.files, fd)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFile, fd)
	}
	return f.Close()
}

func (d *DiskManager) file(fd int) (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[fd]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFile, fd)
	}
	return f, nil
}

// ReadPage reads exactly one page (PageSize bytes) into dst. If the file
// is shorter than the requested page, the remainder is zero-filled so
// lazily allocated pages read back as empty.
func (d *DiskManager) ReadPage(fd int, pageNo int32, dst []byte) error {
	if len(dst) != PageSize {
		return ErrWrongBufSize
	}
	if pageNo < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageNo, pageNo)
	}
	f, err := d.file(fd)
	if err != nil {
		return err
	}

	n, err := f.ReadAt(dst, int64(pageNo)*PageSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read page %d: %w", pageNo, err)
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly one page (PageSize bytes) from src.
func (d *DiskManager) WritePage(fd int, pageNo int32, src []byte) error {
	if len(src) != PageSize {
		return ErrWrongBufSize
	}
	if pageNo < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageNo, pageNo)
	}
	f, err := d.file(fd)
	if err != nil {
		return err
	}

	n, err := f.WriteAt(src, int64(pageNo)*PageSize)
	if err != nil {
		return fmt.Errorf("write page %d: %w", pageNo, err)
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// NumPages reports how many full pages the file currently holds on disk.
func (d *DiskManager) NumPages(fd int) (int32, error) {
	f, err := d.file(fd)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return int32(info.Size() / PageSize), nil
}

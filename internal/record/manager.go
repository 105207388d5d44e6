package record

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tuannm99/recordstore/internal/bufferpool"
	"github.com/tuannm99/recordstore/internal/storage"
)

// Manager creates, destroys, opens and closes record files on top of one
// DiskManager / buffer pool pair.
type Manager struct {
	dm   *storage.DiskManager
	pool *bufferpool.Pool
	log  *zap.Logger
}

func NewManager(dm *storage.DiskManager, pool *bufferpool.Pool, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{dm: dm, pool: pool, log: log}
}

// CreateFile creates a record file for fixed-length records of recordSize
// bytes and persists its header into disk page 0.
func (m *Manager) CreateFile(path string, recordSize int32) error {
	if recordSize <= 0 || recordSize > MaxRecordSize {
		return fmt.Errorf("%w: record size %d not in [1, %d]", ErrBadRecordSize, recordSize, MaxRecordSize)
	}

	if err := m.dm.CreateFile(path); err != nil {
		return err
	}

	hdr := FileHeader{
		RecordSize:      recordSize,
		RecordsPerPage:  recordsPerPage(recordSize),
		NumPages:        0,
		FirstFreePageNo: storage.InvalidPageNo,
		NumRecords:      0,
	}

	fd, err := m.dm.OpenFile(path)
	if err != nil {
		return err
	}
	buf := make([]byte, storage.PageSize)
	hdr.marshal(buf)
	if err := m.dm.WritePage(fd, 0, buf); err != nil {
		_ = m.dm.CloseFile(fd)
		return fmt.Errorf("write file header: %w", err)
	}
	if err := m.dm.CloseFile(fd); err != nil {
		return err
	}

	m.log.Info("created record file",
		zap.String("path", path),
		zap.Int32("record_size", recordSize),
		zap.Int32("records_per_page", hdr.RecordsPerPage))
	return nil
}

// DestroyFile removes a record file from disk. The file must be closed.
func (m *Manager) DestroyFile(path string) error {
	return m.dm.DestroyFile(path)
}

// OpenFile opens a record file and loads its header. A header that fails
// validation aborts the open: running against it would corrupt data.
func (m *Manager) OpenFile(path string) (*FileHandle, error) {
	fd, err := m.dm.OpenFile(path)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, storage.PageSize)
	if err := m.dm.ReadPage(fd, 0, buf); err != nil {
		_ = m.dm.CloseFile(fd)
		return nil, fmt.Errorf("read file header: %w", err)
	}

	var hdr FileHeader
	if err := hdr.unmarshal(buf); err != nil {
		_ = m.dm.CloseFile(fd)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.log.Debug("opened record file",
		zap.String("path", path),
		zap.Int("fd", fd),
		zap.Int32("num_pages", hdr.NumPages),
		zap.Int32("num_records", hdr.NumRecords))
	return newFileHandle(m.dm, m.pool, m.log, fd, path, hdr), nil
}

// CloseFile flushes every cached page of the file plus the in-memory
// header, then closes the descriptor. No record of the handle may still
// be pinned.
func (m *Manager) CloseFile(fh *FileHandle) error {
	if err := m.pool.ReleaseFilePages(fh.fd); err != nil {
		return err
	}

	buf := make([]byte, storage.PageSize)
	fh.hdr.marshal(buf)
	if err := m.dm.WritePage(fh.fd, 0, buf); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}

	return m.dm.CloseFile(fh.fd)
}

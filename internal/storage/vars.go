package storage

import (
	"errors"
)

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576

	// PageSize is the fixed size of every disk page and every buffer
	// frame. All components share this constant.
	PageSize = 1 << 12 // 4,096 (4 KiB)
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

// InvalidPageNo marks "no page" in persisted links (free-page chain) and
// in-memory sentinels.
const InvalidPageNo int32 = -1

var (
	ErrUnknownFile   = errors.New("storage: unknown file descriptor")
	ErrFileExists    = errors.New("storage: file already exists")
	ErrFileNotFound  = errors.New("storage: file not found")
	ErrInvalidPageNo = errors.New("storage: invalid page number")
	ErrOutOfBounds   = errors.New("storage: page access out of bounds")
	ErrWrongBufSize  = errors.New("storage: buffer size != PageSize")
)

// PageID identifies one disk page: which open file it belongs to and its
// page number within that file. It is comparable and used as the buffer
// pool's lookup key.
type PageID struct {
	FD     int
	PageNo int32
}

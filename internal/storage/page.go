package storage

// Page is one page's worth of bytes held in memory. The buffer pool owns
// the allocation; callers get bounds-checked views and never index past
// the page.
type Page struct {
	buf []byte
}

func NewPage() *Page {
	return &Page{buf: make([]byte, PageSize)}
}

// Bytes returns the full page buffer. The slice aliases the frame memory;
// it is only valid while the caller holds a pin on the page.
func (p *Page) Bytes() []byte {
	return p.buf
}

// Slice returns the sub-range [off, off+n) of the page.
func (p *Page) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(p.buf) {
		return nil, ErrOutOfBounds
	}
	return p.buf[off : off+n], nil
}

// Reset zeroes the page contents.
func (p *Page) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}

package bufferpool

import "github.com/tuannm99/recordstore/pkg/lrux"

type lruAdapter struct {
	l *lrux.LRU
}

func newLRUAdapter(capacity int) Replacer {
	return &lruAdapter{l: lrux.New(capacity)}
}

func (a *lruAdapter) Pin(frameID int) {
	a.l.Pin(frameID)
}

func (a *lruAdapter) Unpin(frameID int) {
	a.l.Unpin(frameID)
}

func (a *lruAdapter) Victim() (int, bool) {
	return a.l.Victim()
}

func (a *lruAdapter) Size() int {
	return a.l.Size()
}

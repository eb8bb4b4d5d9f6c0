package ingestion

import "sync"

// docLocks はDocID単位の排他ロックを提供する
// 同一ドキュメントに対するupsertとdeleteの競合を直列化するために使う
// 異なるドキュメントの操作は互いにブロックしない
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*lockEntry)}
}

// Lock は指定DocIDのロックを取得し、解放関数を返す
func (l *docLocks) Lock(docID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[docID]
	if !ok {
		entry = &lockEntry{}
		l.locks[docID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, docID)
		}
		l.mu.Unlock()
	}
}

package dialer

import (
	"strconv"
	"sync"
)

// keyedMutex serializes work per key (lead, channel, campaign).
// Entries are dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

func (k *keyedMutex) ref(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	return e
}

func (k *keyedMutex) unref(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	e := k.ref(key)
	e.ch <- struct{}{}
	return func() {
		<-e.ch
		k.unref(key, e)
	}
}

// TryLock takes key only if nobody holds it.
func (k *keyedMutex) TryLock(key string) (func(), bool) {
	e := k.ref(key)
	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			k.unref(key, e)
		}, true
	default:
		k.unref(key, e)
		return nil, false
	}
}

// LockAll takes every key in order and returns one func releasing them all.
// Callers pass keys in a stable order so two LockAll calls cannot deadlock.
func (k *keyedMutex) LockAll(keys []string) func() {
	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func leadKey(id int64) string { return "lead:" + strconv.FormatInt(id, 10) }
func channelKey(id string) string { return "channel:" + id }
func campaignKey(id int64) string { return "campaign:" + strconv.FormatInt(id, 10) }

/*
flight.go - Per-key serialization of completion mutations

PURPOSE:
  Completion writes are discrete operations against a store and may
  race: two toggle requests for the same (task, day) must not observe
  an interleaved partial state. FlightGroup hands out one mutex per
  key, so a later request runs strictly after an earlier one and sees
  its result. Different keys proceed independently; batches are atomic
  per key only.
*/
package engine

import "sync"

// FlightGroup serializes operations per (task, day) key.
// The zero value is ready to use.
type FlightGroup struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Do runs fn while holding the lock for key. Concurrent calls with the
// same key run one at a time, in arrival order; calls with different
// keys do not block each other.
func (f *FlightGroup) Do(key Key, fn func() error) error {
	l := f.acquire(key)
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		f.release(key, l)
	}()
	return fn()
}

func (f *FlightGroup) acquire(key Key) *keyLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks == nil {
		f.locks = make(map[Key]*keyLock)
	}
	l, ok := f.locks[key]
	if !ok {
		l = &keyLock{}
		f.locks[key] = l
	}
	l.refs++
	return l
}

// release drops the lock entry once no caller holds or awaits it, so
// the map does not grow with every key ever touched.
func (f *FlightGroup) release(key Key, l *keyLock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(f.locks, key)
	}
}

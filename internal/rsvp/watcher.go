package rsvp

import "sync"

// changeFeed fans submission changes out to per-guest subscribers. Callbacks
// receive the latest submission, or nil once the document is deleted. A
// panicking callback is contained so one bad subscriber cannot take down the
// write path.
type changeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]func(*Submission)
	nextID      int64
}

func newChangeFeed() *changeFeed {
	return &changeFeed{
		subscribers: make(map[string]map[int64]func(*Submission)),
	}
}

func (f *changeFeed) subscribe(userID string, onChange func(*Submission)) func() {
	if userID == "" || onChange == nil {
		return func() {}
	}
	f.mu.Lock()
	f.nextID++
	subscriberID := f.nextID
	if _, ok := f.subscribers[userID]; !ok {
		f.subscribers[userID] = make(map[int64]func(*Submission))
	}
	f.subscribers[userID][subscriberID] = onChange
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		subscribers := f.subscribers[userID]
		if subscribers != nil {
			delete(subscribers, subscriberID)
			if len(subscribers) == 0 {
				delete(f.subscribers, userID)
			}
		}
		f.mu.Unlock()
	}
}

func (f *changeFeed) publish(userID string, submission *Submission) {
	if userID == "" {
		return
	}
	f.mu.RLock()
	subscribers := f.subscribers[userID]
	if len(subscribers) == 0 {
		f.mu.RUnlock()
		return
	}
	callbacks := make([]func(*Submission), 0, len(subscribers))
	for _, callback := range subscribers {
		callbacks = append(callbacks, callback)
	}
	f.mu.RUnlock()

	for _, callback := range callbacks {
		deliver(callback, submission)
	}
}

func deliver(callback func(*Submission), submission *Submission) {
	defer func() {
		_ = recover()
	}()
	callback(submission)
}

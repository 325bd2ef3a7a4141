package store

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder appends ticks to a session from a background goroutine so the
// caller never waits on the database. Ticks arriving while the buffer is
// full are dropped and counted.
type Recorder struct {
	store   *Store
	session *Session
	log     *zap.Logger

	mu      sync.Mutex
	closed  bool
	seq     int
	dropped int

	ch   chan TickRecord
	done chan struct{}
}

// NewRecorder opens a new session labelled source and starts recording.
func NewRecorder(s *Store, source string, buffer int, log *zap.Logger) (*Recorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}

	sess := &Session{Source: source}
	if err := s.Sessions().Create(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r := &Recorder{
		store:   s,
		session: sess,
		log:     log.Named("recorder").With(zap.String("session", sess.ID)),
		ch:      make(chan TickRecord, buffer),
		done:    make(chan struct{}),
	}
	go r.loop()

	r.log.Info("recording started", zap.String("source", source))
	return r, nil
}

// SessionID returns the ID of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Record queues rec under the next sequence number.
func (r *Recorder) Record(rec TickRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	rec.Seq = r.seq
	select {
	case r.ch <- rec:
		r.seq++
	default:
		r.dropped++
		r.log.Warn("recording buffer full, tick dropped", zap.Int("dropped", r.dropped))
	}
}

func (r *Recorder) loop() {
	defer close(r.done)

	ticks := r.store.Ticks()
	for rec := range r.ch {
		if err := ticks.Append(r.session.ID, rec); err != nil {
			r.log.Warn("record tick", zap.Int("seq", rec.Seq), zap.Error(err))
		}
	}
}

// Close flushes queued ticks and marks the session ended.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done

	if err := r.store.Sessions().End(r.session.ID, time.Now()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	r.log.Info("recording stopped", zap.Int("ticks", r.seq), zap.Int("dropped", r.dropped))
	return nil
}

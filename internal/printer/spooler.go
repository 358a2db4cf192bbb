package printer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrQueueFull = errors.New("print queue is full")
	ErrClosed    = errors.New("print queue is closed")
)

const printTimeout = 15 * time.Second

// Receipt tells the caller what happened to a print request. Without a sink
// nothing is queued and Preview carries the rendered text instead.
type Receipt struct {
	Queued  bool
	Preview string
}

type job struct {
	name string
	data []byte
}

// Spooler sends documents to a single sink from one background worker so
// jobs reach the printer in submission order.
type Spooler struct {
	sink  Sink
	width int
	jobs  chan job
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewSpooler(sink Sink, width, queueSize int) *Spooler {
	if queueSize <= 0 {
		queueSize = 16
	}
	s := &Spooler{
		sink:  sink,
		width: width,
		jobs:  make(chan job, queueSize),
		done:  make(chan struct{}),
	}
	if sink == nil {
		close(s.done)
		return s
	}
	go s.worker()
	return s
}

func (s *Spooler) HasSink() bool {
	return s.sink != nil
}

func (s *Spooler) PrintTicket(t Ticket) (Receipt, error) {
	return s.submit("ticket", RenderTicket(t, s.width))
}

func (s *Spooler) PrintInventory(list InventoryList) (Receipt, error) {
	return s.submit("inventory", RenderInventory(list, s.width))
}

// Close stops accepting jobs and waits for queued ones to finish.
func (s *Spooler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.sink != nil {
			close(s.jobs)
		}
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Spooler) submit(name string, doc *Document) (Receipt, error) {
	if s.sink == nil {
		return Receipt{Preview: doc.Preview()}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Receipt{}, ErrClosed
	}
	select {
	case s.jobs <- job{name: name, data: doc.Bytes()}:
		return Receipt{Queued: true, Preview: doc.Preview()}, nil
	default:
		return Receipt{}, ErrQueueFull
	}
}

func (s *Spooler) worker() {
	defer close(s.done)
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), printTimeout)
		if err := s.sink.Print(ctx, j.data); err != nil {
			log.Printf("[printer] WARN: %s job on %s failed: %v", j.name, s.sink.Name(), err)
		}
		cancel()
	}
}

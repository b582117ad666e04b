package stt

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Word is one recognised token with its timing inside the segment.
type Word struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// Result is what an engine returns for one block of PCM.
type Result struct {
	Text       string
	Words      []Word
	Confidence float64
}

// Transcriber interface for STT backends. Implementations must be safe for
// concurrent calls from several workers.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (Result, error)
	Close() error
}

// Handler receives every successful transcription, in enqueue order per session.
type Handler func(ctx context.Context, seg *audio.Segment, res Result)

type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines. Each worker owns one
// queue shard, and a session always maps to the same shard.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithCapacity sets the total number of pending segments across all shards.
func WithCapacity(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.capacity = n
		}
	}
}

func WithMetrics(m *observe.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// Pool is the bounded transcription queue plus its workers. Enqueue never
// blocks: when a shard is full the segment is dropped.
type Pool struct {
	transcriber Transcriber
	handler     Handler
	metrics     *observe.Metrics

	workers  int
	capacity int
	shards   []chan *audio.Segment
	queued   atomic.Int64 // segments waiting in any shard

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mutex    sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]int
}

func NewPool(transcriber Transcriber, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		transcriber: transcriber,
		handler:     handler,
		workers:     1,
		capacity:    64,
		stopChan:    make(chan struct{}),
		pending:     make(map[string]int),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	// capacity bounds the pool as a whole. Every shard can hold all of it, so
	// one busy session is never limited to its shard's share.
	p.shards = make([]chan *audio.Segment, p.workers)
	for i := range p.shards {
		p.shards[i] = make(chan *audio.Segment, p.capacity)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	log.Info().
		Int("workers", p.workers).
		Int("capacity", p.capacity).
		Msg("Started STT worker pool")
	return nil
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	log.Debug().Int("worker_id", workerID).Msg("STT worker started")
	defer log.Debug().Int("worker_id", workerID).Msg("STT worker stopped")

	queue := p.shards[workerID]
	for {
		select {
		case seg := <-queue:
			p.queued.Add(-1)
			p.process(ctx, workerID, seg)
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, seg *audio.Segment) {
	defer p.done(seg.SessionID)
	defer func() {
		if r := recover(); r != nil {
			p.metrics.TranscriptionErrors.Add(ctx, 1)
			log.Error().
				Interface("panic", r).
				Str("session_id", seg.SessionID).
				Str("segment_id", seg.ID.String()).
				Int("worker_id", workerID).
				Msg("Recovered from panic while processing segment")
		}
	}()

	log.Debug().
		Str("session_id", seg.SessionID).
		Str("segment_id", seg.ID.String()).
		Int("worker_id", workerID).
		Int("bytes", len(seg.PCM)).
		Msg("segment.dequeue")

	start := time.Now()
	res, err := p.transcriber.Transcribe(ctx, seg.PCM)
	elapsed := time.Since(start)
	p.metrics.STTDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		p.metrics.TranscriptionErrors.Add(ctx, 1)
		log.Error().
			Err(err).
			Str("session_id", seg.SessionID).
			Str("segment_id", seg.ID.String()).
			Int("worker_id", workerID).
			Msg("Failed to transcribe segment")
		return
	}

	log.Debug().
		Str("session_id", seg.SessionID).
		Str("segment_id", seg.ID.String()).
		Int64("duration_ms", elapsed.Milliseconds()).
		Str("text", res.Text).
		Msg("Transcribed segment")

	if p.handler != nil {
		p.handler(ctx, seg, res)
	}
}

// Enqueue hands seg to its session's shard. It reports false, without
// blocking, when capacity segments are already queued.
func (p *Pool) Enqueue(seg *audio.Segment) bool {
	p.addPending(seg.SessionID, 1)

	if p.queued.Add(1) > int64(p.capacity) {
		p.queued.Add(-1)
		p.drop(seg)
		return false
	}

	queue := p.shards[p.shardFor(seg.SessionID)]
	select {
	case queue <- seg:
		p.metrics.SegmentsEnqueued.Add(context.Background(), 1)
		log.Debug().
			Str("session_id", seg.SessionID).
			Str("segment_id", seg.ID.String()).
			Int("queue_size", p.QueueSize()).
			Msg("segment.enqueue")
		return true
	default:
		p.queued.Add(-1)
		p.drop(seg)
		return false
	}
}

func (p *Pool) drop(seg *audio.Segment) {
	p.addPending(seg.SessionID, -1)
	p.metrics.SegmentsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", "queue_full")))
	log.Warn().
		Str("session_id", seg.SessionID).
		Str("segment_id", seg.ID.String()).
		Int("queue_size", p.QueueSize()).
		Msg("Transcription queue full, dropping segment")
}

// Wait blocks until every segment enqueued for sessionID has been processed
// or ctx is done.
func (p *Pool) Wait(ctx context.Context, sessionID string) error {
	if p.Pending(sessionID) == 0 {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.Pending(sessionID) == 0 {
				return nil
			}
		}
	}
}

// Pending returns the number of queued or in-flight segments for sessionID.
func (p *Pool) Pending(sessionID string) int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pending[sessionID]
}

// QueueSize returns the number of queued segments across all shards.
func (p *Pool) QueueSize() int {
	return int(p.queued.Load())
}

func (p *Pool) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.started {
		return
	}

	close(p.stopChan)
	p.wg.Wait()

	p.started = false
	log.Info().Int("abandoned", p.QueueSize()).Msg("Stopped STT worker pool")
}

func (p *Pool) done(sessionID string) {
	p.addPending(sessionID, -1)
}

func (p *Pool) addPending(sessionID string, delta int) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	n := p.pending[sessionID] + delta
	if n <= 0 {
		delete(p.pending, sessionID)
		return
	}
	p.pending[sessionID] = n
}

func (p *Pool) shardFor(sessionID string) int {
	if len(p.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

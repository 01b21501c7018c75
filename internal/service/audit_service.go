package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/audit"
)

// AuditService provides async audit logging with a buffered channel and
// background worker. Decisions are recorded without blocking the gateway
// hot path. When the buffer is full the oldest pending record is evicted
// so the trail always favors the most recent activity.
type AuditService struct {
	store     audit.Store
	auditChan chan audit.Record
	wg        sync.WaitGroup
	logger    *slog.Logger

	batchSize     int
	flushInterval time.Duration

	channelSize int
	dropCount   atomic.Int64 // evicted records, lock-free for metrics

	// Channel depth warning, rate-limited to once per second.
	warningThreshold int
	lastWarning      atomic.Int64 // Unix nanos
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets the number of records to batch before writing.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets the interval to flush pending records.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithChannelSize sets the size of the audit channel buffer.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		if size > 0 {
			s.auditChan = make(chan audit.Record, size)
			s.channelSize = size
		}
	}
}

// WithWarningThreshold sets the channel depth warning percentage (0-100).
// A warning is logged when channel depth exceeds this percentage of capacity.
func WithWarningThreshold(percent int) AuditOption {
	return func(s *AuditService) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.warningThreshold = percent
	}
}

// NewAuditService creates a new AuditService with the given store and options.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	const defaultChannelSize = 1000
	s := &AuditService{
		store:            store,
		auditChan:        make(chan audit.Record, defaultChannelSize),
		logger:           logger,
		batchSize:        100,
		flushInterval:    time.Second,
		channelSize:      defaultChannelSize,
		warningThreshold: 80,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the background worker that batches and writes audit records.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues an audit record. Never blocks: when the buffer is full the
// oldest pending record is evicted to make room, so a stalled store degrades
// the trail from the tail end rather than stalling request handling.
func (s *AuditService) Record(record audit.Record) {
	if s.warningThreshold > 0 {
		depth := len(s.auditChan)
		threshold := s.channelSize * s.warningThreshold / 100
		if depth >= threshold {
			s.warnChannelDepth(depth)
		}
	}

	for {
		select {
		case s.auditChan <- record:
			return
		default:
		}

		// Buffer full: evict the oldest pending record, then retry the send.
		// The worker may drain concurrently, so the receive can miss; loop
		// until the send lands.
		select {
		case dropped := <-s.auditChan:
			s.recordDrop(dropped)
		default:
		}
	}
}

// recordDrop increments the eviction counter and logs the dropped record.
func (s *AuditService) recordDrop(record audit.Record) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("audit record evicted",
		"request_id", record.RequestID,
		"event", string(record.Event),
		"total_drops", drops,
	)
}

// warnChannelDepth logs a capacity warning, rate-limited to once per second.
func (s *AuditService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()

	if now-last < int64(time.Second) {
		return
	}

	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("audit channel approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// DroppedRecords returns total evicted records (for metrics/alerting).
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current channel usage (for monitoring).
func (s *AuditService) ChannelDepth() int {
	return len(s.auditChan)
}

// ChannelCapacity returns channel buffer size (for percentage calculation).
func (s *AuditService) ChannelCapacity() int {
	return s.channelSize
}

// Query reads back records matching the filter from the store.
func (s *AuditService) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	return s.store.Query(ctx, filter)
}

// Stop signals the worker to stop and waits for it to finish.
// Pending records are flushed before returning.
func (s *AuditService) Stop() {
	close(s.auditChan)
	s.wg.Wait()
}

// worker is the background goroutine that collects and flushes audit records.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record, ok := <-s.auditChan:
			if !ok {
				// Channel closed; final flush with a bounded deadline.
				if len(batch) > 0 {
					flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					flushCancel()
				}
				return
			}
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Flush what we have with a bounded deadline, then exit.
			// Remaining channel records are lost; shutdown paths call Stop
			// before cancelling the context to avoid that.
			if len(batch) > 0 {
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.flush(flushCtx, batch)
				flushCancel()
			}
			return
		}
	}
}

// flush writes a batch to the store. Failures are logged, not retried.
func (s *AuditService) flush(ctx context.Context, batch []audit.Record) {
	if err := s.store.WriteBatch(ctx, batch); err != nil {
		s.logger.Error("audit flush failed",
			"batch_size", len(batch),
			"error", err)
	}
}

package game

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 1024                   // Ring buffer size
	MaxEventsPerSec      = 10000                  // Global rate limit
	MaxEventsPerPlayer   = 100                    // Per-player rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	PlayerLimiterCleanup = 5 * time.Minute        // Cleanup interval for player limiters
)

// EventLog is a bounded, rate-limited gameplay journal shared by every game
// in the process. The most recent events stay queryable in memory; when a
// file is configured they are also appended to it as JSON lines.
type EventLog struct {
	mu     sync.Mutex
	buffer [EventBufferSize]Event
	head   uint64 // events written, the next sequence number
	synced uint64 // events handed to the writer

	// Rate limiting for DoS protection
	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*playerLimiterEntry

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

// playerLimiterEntry tracks per-player rate limiting
type playerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // Unix nano
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start begins accepting events. With a non-empty filePath an async writer
// appends them to that file.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
			el.file = nil
		}
		el.fileMu.Unlock()
	})
}

// Emit appends an event. Returns false when the log is stopped or the
// event was rate limited. A full ring overwrites the oldest entry.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}
	if event.PlayerID != "" && !el.getPlayerLimiter(event.PlayerID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	event.Sequence = el.head
	el.buffer[el.head%EventBufferSize] = event
	el.head++
	if el.head-el.synced > EventBufferSize {
		// Writer fell behind; the overwritten events never reach the file.
		el.droppedCount.Add(el.head - el.synced - EventBufferSize)
		el.synced = el.head - EventBufferSize
	}
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple creates and emits an event in one call.
func (el *EventLog) EmitSimple(eventType EventType, gameID string, tick int, playerID string, payload any) bool {
	if el == nil {
		return false
	}
	return el.Emit(NewEvent(eventType, gameID, tick, playerID, payload))
}

// Recent returns up to limit of the newest buffered events for gameID, oldest
// first. An empty gameID matches every game.
func (el *EventLog) Recent(gameID string, limit int) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	var oldest uint64
	if el.head > EventBufferSize {
		oldest = el.head - EventBufferSize
	}

	var out []Event
	for seq := el.head; seq > oldest && len(out) < limit; seq-- {
		ev := el.buffer[(seq-1)%EventBufferSize]
		if gameID == "" || ev.GameID == gameID {
			out = append(out, ev)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// getPlayerLimiter returns/creates a per-player rate limiter
func (el *EventLog) getPlayerLimiter(playerID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.playerLimiters.Load(playerID); ok {
		e := entry.(*playerLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &playerLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerPlayer, MaxEventsPerPlayer/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*playerLimiterEntry).limiter
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale player limiters to prevent memory leak
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(PlayerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupPlayerLimiters()
		}
	}
}

func (el *EventLog) cleanupPlayerLimiters() {
	cutoff := time.Now().Add(-PlayerLimiterCleanup).UnixNano()
	el.playerLimiters.Range(func(key, value any) bool {
		if value.(*playerLimiterEntry).lastUsed.Load() < cutoff {
			el.playerLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch takes events not yet handed to the writer.
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.synced < el.head && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.synced%EventBufferSize])
		el.synced++
	}
	return batch
}

// flushBatch writes events to disk (append-only, newline-delimited JSON)
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}

	w := bufio.NewWriter(el.file)
	enc := json.NewEncoder(w)
	for _, event := range batch {
		if err := enc.Encode(event); err != nil {
			continue
		}
	}
	w.Flush()
}

// EventLogStats is a point-in-time view of the log counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.head - el.synced
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}

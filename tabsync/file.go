package tabsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPollInterval is how often the file watcher checks for new
// messages. A storage poll is the degraded strategy; latency here is
// acceptable because correctness is guaranteed by the 401 path.
const DefaultPollInterval = 250 * time.Millisecond

// staleLockAge is how old a lock file must be before takeover
const staleLockAge = 10 * time.Second

// FileBroadcaster is the storage-based delivery strategy: the latest
// message is written to a shared file and sibling processes poll it for
// changes. The file naturally retains the most recent message for late
// joiners.
type FileBroadcaster struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	subs    map[int]func(Message)
	nextID  int
	lastRaw []byte

	stop     chan struct{}
	stopOnce sync.Once
}

// Compile-time check that FileBroadcaster implements the Broadcaster interface.
var _ Broadcaster = (*FileBroadcaster)(nil)

// NewFileBroadcaster creates a file-backed broadcaster watching path.
// Fails if the file cannot be created or read, letting Select fall back.
func NewFileBroadcaster(path string, pollInterval time.Duration, logger *slog.Logger) (*FileBroadcaster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sync directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync file: %w", err)
	}
	_ = f.Close()

	current, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync file: %w", err)
	}

	fb := &FileBroadcaster{
		path:     path,
		interval: pollInterval,
		logger:   logger,
		subs:     make(map[int]func(Message)),
		lastRaw:  current,
		stop:     make(chan struct{}),
	}

	go fb.pollLoop()

	return fb, nil
}

// Broadcast writes the message to the shared file.
// The write is temp-file-and-rename so pollers never observe a torn
// message, coordinated by a lock file against concurrent writers.
func (fb *FileBroadcaster) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sync message: %w", err)
	}

	unlock, err := fb.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	tmp := fb.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sync message: %w", err)
	}
	if err := os.Rename(tmp, fb.path); err != nil {
		return fmt.Errorf("failed to publish sync message: %w", err)
	}

	// Remember our own write so the poller does not re-deliver it here;
	// other processes pick it up from their own polls.
	fb.mu.Lock()
	fb.lastRaw = data
	fb.mu.Unlock()

	return nil
}

// Subscribe registers a handler. The message currently in the file, if
// any, is replayed immediately so late joiners converge.
func (fb *FileBroadcaster) Subscribe(handler func(Message)) (cancel func()) {
	fb.mu.Lock()
	id := fb.nextID
	fb.nextID++
	fb.subs[id] = handler
	last := fb.lastRaw
	fb.mu.Unlock()

	if len(last) > 0 {
		var msg Message
		if err := json.Unmarshal(last, &msg); err == nil {
			handler(msg)
		}
	}

	return func() {
		fb.mu.Lock()
		delete(fb.subs, id)
		fb.mu.Unlock()
	}
}

// Close stops the poll loop and drops subscriptions
func (fb *FileBroadcaster) Close() error {
	fb.stopOnce.Do(func() { close(fb.stop) })
	fb.mu.Lock()
	fb.subs = make(map[int]func(Message))
	fb.mu.Unlock()
	return nil
}

// pollLoop watches the sync file for messages written by other processes
func (fb *FileBroadcaster) pollLoop() {
	ticker := time.NewTicker(fb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fb.poll()
		case <-fb.stop:
			return
		}
	}
}

func (fb *FileBroadcaster) poll() {
	data, err := os.ReadFile(fb.path)
	if err != nil || len(data) == 0 {
		return
	}

	fb.mu.Lock()
	if bytes.Equal(data, fb.lastRaw) {
		fb.mu.Unlock()
		return
	}
	fb.lastRaw = data
	handlers := make([]func(Message), 0, len(fb.subs))
	for _, h := range fb.subs {
		handlers = append(handlers, h)
	}
	fb.mu.Unlock()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		fb.logger.Warn("malformed sync message ignored", "error", err)
		return
	}

	for _, h := range handlers {
		h(msg)
	}
}

// acquireLock takes an exclusive lock file next to the sync file,
// retrying briefly and taking over locks left by crashed writers.
func (fb *FileBroadcaster) acquireLock() (func(), error) {
	lockPath := fb.path + ".lock"
	retryDelay := 10 * time.Millisecond

	for i := 0; i < 100; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}

		if os.IsExist(err) {
			if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
				if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
					return nil, fmt.Errorf("failed to remove stale sync lock: %w", remErr)
				}
				continue
			}
			time.Sleep(retryDelay)
			continue
		}

		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}

	return nil, fmt.Errorf("timed out waiting for sync lock %s", lockPath)
}

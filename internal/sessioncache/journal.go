package sessioncache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/tidwall/wal"
)

const (
	recordSnapshot  byte = 1
	recordTombstone byte = 2
)

// Journal is a Store backed by an append-only write-ahead log. Every Save
// appends a full snapshot of one course; Delete appends a tombstone. On open
// the log is replayed and the latest record per course wins.
//
// Compaction rewrites the live snapshots at the tail of the log and truncates
// everything before them.
//
// Thread-safety: Journal is safe for concurrent use.
type Journal struct {
	mu sync.Mutex

	dir          string
	log          *wal.Log
	nextIdx      uint64
	courses      map[string]CourseSessionCache
	appended     int
	compactAfter int
	noSync       bool
	logger       *slog.Logger
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithCompactAfter compacts after n appends. Zero disables compaction.
func WithCompactAfter(n int) JournalOption {
	return func(j *Journal) { j.compactAfter = n }
}

// WithNoSync skips fsync after each append.
func WithNoSync(noSync bool) JournalOption {
	return func(j *Journal) { j.noSync = noSync }
}

// WithJournalLogger sets the logger.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// OpenJournal opens or creates the journal in dir and replays it.
func OpenJournal(dir string, opts ...JournalOption) (*Journal, error) {
	j := &Journal{
		dir:          dir,
		courses:      make(map[string]CourseSessionCache),
		nextIdx:      1,
		compactAfter: 256,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	walOpts := *wal.DefaultOptions
	walOpts.NoSync = j.noSync
	log, err := wal.Open(dir, &walOpts)
	if err != nil {
		return nil, fmt.Errorf("wal.Open: %w", err)
	}
	j.log = log

	if err := j.replay(); err != nil {
		log.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) replay() error {
	empty, err := j.log.IsEmpty()
	if err != nil {
		return fmt.Errorf("wal.IsEmpty: %w", err)
	}
	if empty {
		return nil
	}

	first, err := j.log.FirstIndex()
	if err != nil {
		return fmt.Errorf("wal.FirstIndex: %w", err)
	}
	last, err := j.log.LastIndex()
	if err != nil {
		return fmt.Errorf("wal.LastIndex: %w", err)
	}

	for idx := first; idx <= last; idx++ {
		data, err := j.log.Read(idx)
		if err != nil {
			return fmt.Errorf("wal.Read(%d): %w", idx, err)
		}
		recType, payload, err := unmarshalRecord(data)
		if err != nil {
			return fmt.Errorf("unmarshal record %d: %w", idx, err)
		}

		switch recType {
		case recordSnapshot:
			var c CourseSessionCache
			if err := json.Unmarshal(payload, &c); err != nil {
				return fmt.Errorf("decode snapshot %d: %w", idx, err)
			}
			j.courses[c.Course] = c.Clone()
		case recordTombstone:
			delete(j.courses, string(payload))
		default:
			j.logger.Warn("skipping unknown journal record", "index", idx, "type", recType)
		}
	}

	j.nextIdx = last + 1
	j.logger.Debug("journal replayed",
		"first", first,
		"last", last,
		"courses", len(j.courses))
	return nil
}

// Load returns a copy of the latest snapshot of course.
func (j *Journal) Load(course string) (CourseSessionCache, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.courses[course]
	if !ok {
		return CourseSessionCache{}, false, nil
	}
	return c.Clone(), true, nil
}

// Save appends a snapshot of c and compacts the log once enough records
// have accumulated.
func (j *Journal) Save(c CourseSessionCache) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", c.Course, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendLocked(recordSnapshot, payload); err != nil {
		return err
	}
	j.courses[c.Course] = c.Clone()
	return j.maybeCompactLocked()
}

// Delete appends a tombstone for course. Replay drops the course.
func (j *Journal) Delete(course string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendLocked(recordTombstone, []byte(course)); err != nil {
		return err
	}
	delete(j.courses, course)
	return j.maybeCompactLocked()
}

// Courses returns the courses with a live snapshot, sorted.
func (j *Journal) Courses() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Sorted(maps.Keys(j.courses))
}

// Compact rewrites the live snapshots and drops every older record.
func (j *Journal) Compact() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.compactLocked()
}

// Close closes the underlying log.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.log == nil {
		return nil
	}
	err := j.log.Close()
	j.log = nil
	return err
}

func (j *Journal) appendLocked(recType byte, payload []byte) error {
	if j.log == nil {
		return errors.New("journal closed")
	}
	if err := j.log.Write(j.nextIdx, marshalRecord(recType, payload)); err != nil {
		return fmt.Errorf("wal.Write(%d): %w", j.nextIdx, err)
	}
	j.nextIdx++
	j.appended++
	if !j.noSync {
		if err := j.log.Sync(); err != nil {
			return fmt.Errorf("wal.Sync: %w", err)
		}
	}
	return nil
}

func (j *Journal) maybeCompactLocked() error {
	if j.compactAfter <= 0 || j.appended < j.compactAfter {
		return nil
	}
	return j.compactLocked()
}

func (j *Journal) compactLocked() error {
	if j.log == nil {
		return errors.New("journal closed")
	}
	if j.nextIdx == 1 {
		return nil
	}

	keepFrom := j.nextIdx - 1
	courses := slices.Sorted(maps.Keys(j.courses))
	for i, course := range courses {
		payload, err := json.Marshal(j.courses[course])
		if err != nil {
			return fmt.Errorf("encode snapshot %s: %w", course, err)
		}
		if err := j.appendLocked(recordSnapshot, payload); err != nil {
			return err
		}
		if i == 0 {
			keepFrom = j.nextIdx - 1
		}
	}

	if err := j.log.TruncateFront(keepFrom); err != nil {
		return fmt.Errorf("wal.TruncateFront: %w", err)
	}
	j.appended = 0
	j.logger.Debug("journal compacted", "keep_from", keepFrom, "courses", len(courses))
	return nil
}

func marshalRecord(recType byte, payload []byte) []byte {
	buf := make([]byte, 1+binary.MaxVarintLen64+len(payload))
	buf[0] = recType
	n := binary.PutUvarint(buf[1:], uint64(len(payload)))
	copy(buf[1+n:], payload)
	return buf[:1+n+len(payload)]
}

func unmarshalRecord(data []byte) (byte, []byte, error) {
	if len(data) < 2 {
		return 0, nil, errors.New("record too short")
	}
	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return 0, nil, errors.New("bad record length")
	}
	start := 1 + n
	if uint64(len(data)-start) < size {
		return 0, nil, errors.New("truncated record")
	}
	return data[0], data[start : start+int(size)], nil
}

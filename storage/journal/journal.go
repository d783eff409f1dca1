package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"stakeledger/core/events"
	"stakeledger/core/types"
	"stakeledger/observability"
)

var eventPrefix = []byte("evt/")

// DefaultPageSize bounds Since when callers pass a non-positive limit.
const DefaultPageSize = 100

// ErrClosed is returned once the journal has been closed.
var ErrClosed = errors.New("journal: closed")

// Journal is an append-only event log backed by LevelDB. It implements
// events.Emitter so the engine can publish into it directly; every event is
// assigned a strictly increasing sequence number.
type Journal struct {
	mu     sync.Mutex
	db     *leveldb.DB
	last   uint64
	logger *slog.Logger
}

// Open opens the journal stored under path. An empty path keeps the journal
// in memory.
func Open(path string) (*Journal, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if strings.TrimSpace(path) == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open event journal: %w", err)
	}
	j := &Journal{db: db, logger: slog.Default()}
	if err := j.recover(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// SetLogger overrides the logger used to report failed appends.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

func (j *Journal) recover() error {
	iter := j.db.NewIterator(util.BytesPrefix(eventPrefix), nil)
	defer iter.Release()
	if iter.Last() {
		j.last = binary.BigEndian.Uint64(iter.Key()[len(eventPrefix):])
	}
	return iter.Error()
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

// Emit implements events.Emitter. Append failures are logged since emitters
// cannot fail the operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	var rendered *types.Event
	if conv, ok := evt.(events.Convertible); ok {
		rendered = conv.Event()
	}
	if rendered == nil {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	if _, err := j.Append(rendered); err != nil {
		j.logger.Error("journal append failed", "type", rendered.Type, "error", err)
		return
	}
	observability.Events().RecordEvent(rendered.Type)
}

// Append persists evt and returns its sequence number.
func (j *Journal) Append(evt *types.Event) (uint64, error) {
	if evt == nil {
		return 0, fmt.Errorf("journal: nil event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return 0, ErrClosed
	}
	seq := j.last + 1
	stored := *evt
	stored.Sequence = seq
	payload, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	if err := j.db.Put(eventKey(seq), payload, nil); err != nil {
		return 0, fmt.Errorf("write event: %w", err)
	}
	j.last = seq
	return seq, nil
}

// Last returns the sequence number of the newest event, zero when empty.
func (j *Journal) Last() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Since returns up to limit events with a sequence greater than after, oldest
// first. An optional eventType filters the result.
func (j *Journal) Since(after uint64, limit int, eventType string) ([]*types.Event, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	j.mu.Lock()
	db := j.db
	j.mu.Unlock()
	if db == nil {
		return nil, ErrClosed
	}
	rng := util.BytesPrefix(eventPrefix)
	rng.Start = eventKey(after + 1)
	iter := db.NewIterator(rng, nil)
	defer iter.Release()

	out := make([]*types.Event, 0, limit)
	for iter.Next() && len(out) < limit {
		var evt types.Event
		if err := json.Unmarshal(iter.Value(), &evt); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", binary.BigEndian.Uint64(iter.Key()[len(eventPrefix):]), err)
		}
		if eventType != "" && evt.Type != eventType {
			continue
		}
		out = append(out, &evt)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

package utils

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/overlap-blockmodel/pkg/blockmodel"
)

// MoveRecord is one line of a move log.
type MoveRecord struct {
	Chain     string  `json:"chain"`
	Seq       int     `json:"seq"`
	HalfEdge  int     `json:"half_edge"`
	Node      int     `json:"node"`
	From      int     `json:"from"`
	To        int     `json:"to"`
	DeltaS    float64 `json:"delta_s"`
	Timestamp int64   `json:"timestamp"`
}

// MoveTracker writes every committed move as a JSON line. It implements
// blockmodel.MoveObserver and may be shared by several states.
type MoveTracker struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	logger  zerolog.Logger
	count   int
}

// NewMoveTracker creates (or truncates) filename.
func NewMoveTracker(filename string, logger zerolog.Logger) (*MoveTracker, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create move log %s", filename)
	}
	return &MoveTracker{
		file:    file,
		encoder: json.NewEncoder(file),
		logger:  logger.With().Str("component", "move_tracker").Logger(),
	}, nil
}

// ObserveMove records ev. Write failures are logged, not returned.
func (mt *MoveTracker) ObserveMove(ev blockmodel.MoveEvent) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	rec := MoveRecord{
		Chain:     ev.Chain,
		Seq:       ev.Seq,
		HalfEdge:  int(ev.HalfEdge),
		Node:      int(ev.Node),
		From:      ev.From,
		To:        ev.To,
		DeltaS:    ev.DeltaS,
		Timestamp: time.Now().Unix(),
	}
	if err := mt.encoder.Encode(rec); err != nil {
		mt.logger.Error().Err(err).Int("seq", ev.Seq).Msg("Failed to encode move")
		return
	}
	mt.count++
}

// Count is the number of moves written.
func (mt *MoveTracker) Count() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.count
}

// Close flushes and closes the log.
func (mt *MoveTracker) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.file == nil {
		return nil
	}
	if err := mt.file.Sync(); err != nil {
		mt.file.Close()
		mt.file = nil
		return errors.Wrap(err, "failed to sync move log")
	}
	err := mt.file.Close()
	mt.file = nil
	mt.logger.Debug().Int("moves", mt.count).Msg("Move log closed")
	return err
}

// ReadMoveLog decodes a move log written by MoveTracker.
func ReadMoveLog(filename string) ([]MoveRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open move log %s", filename)
	}
	defer file.Close()

	var recs []MoveRecord
	dec := json.NewDecoder(file)
	for dec.More() {
		var rec MoveRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, errors.Wrapf(err, "decoding move %d", len(recs)+1)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/eventbus/pkg/errmodel"
	logpkg "github.com/rzbill/eventbus/pkg/log"
)

// readSince scans events with id > offset in ascending order. limit 0 means
// no limit. Only committed batches are visible to the iterator.
func (s *Store) readSince(channelName string, offset int64, limit int) (events []Event, err error) {
	low, high := entryBounds(channelName)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()

	events = make([]Event, 0, max(1, limit))
	for iter.SeekGE(KeyEntry(channelName, uint64(offset)+1)); iter.Valid(); iter.Next() {
		if limit > 0 && len(events) >= limit {
			break
		}
		ev, derr := s.decodeAt(channelName, iter.Key(), iter.Value())
		if derr != nil {
			return nil, derr
		}
		events = append(events, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return events, nil
}

// readRecent returns up to n events newest first.
func (s *Store) readRecent(channelName string, n int) (events []Event, err error) {
	low, high := entryBounds(channelName)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()

	events = make([]Event, 0, max(1, n))
	for iter.Last(); iter.Valid() && len(events) < n; iter.Prev() {
		ev, derr := s.decodeAt(channelName, iter.Key(), iter.Value())
		if derr != nil {
			return nil, derr
		}
		events = append(events, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) decodeAt(channelName string, key, value []byte) (Event, error) {
	id := binary.BigEndian.Uint64(key[len(key)-8:])
	ev, err := decodeEvent(channelName, id, value)
	if err != nil {
		s.logger.Error("corrupt record", logpkg.Str("channel", channelName), logpkg.Uint64("id", id))
		return Event{}, errmodel.Storage("corrupt_record", err)
	}
	return ev, nil
}

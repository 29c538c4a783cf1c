package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - chanmeta/{channel}                 channel registry entry (JSON)
// - ch/{channel}/m                     last assigned id (be8)
// - ch/{channel}/e/{id_be8}            event records
// - cursor/{channel}/{consumer}        consumer offset (be8) | updated ms (be8)
//
// Channel names never contain '/', so one channel's prefix can never cover
// another's keys.

var (
	sep          = byte('/')
	chanMetaPref = []byte("chanmeta/")
	chanPref     = []byte("ch/")
	cursorPref   = []byte("cursor/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyChannelMeta builds the registry key for a channel.
func KeyChannelMeta(channel string) []byte {
	k := make([]byte, 0, len(chanMetaPref)+len(channel))
	k = append(k, chanMetaPref...)
	k = append(k, channel...)
	return k
}

// KeyLastID builds the key holding a channel's last assigned id.
func KeyLastID(channel string) []byte {
	k := make([]byte, 0, len(chanPref)+len(channel)+len(metaSuffix))
	k = append(k, chanPref...)
	k = append(k, channel...)
	k = append(k, metaSuffix...)
	return k
}

// KeyEntry builds the event key with a big-endian id for proper ordering.
func KeyEntry(channel string, id uint64) []byte {
	k := make([]byte, 0, len(chanPref)+len(channel)+len(entrySeg)+8)
	k = append(k, chanPref...)
	k = append(k, channel...)
	k = append(k, entrySeg...)
	k = appendBE8(k, id)
	return k
}

// entryBounds returns [low, high) covering every event key of channel.
func entryBounds(channel string) (low, high []byte) {
	low = KeyEntry(channel, 0)
	high = append(KeyEntry(channel, ^uint64(0)), 0x00)
	return low, high
}

// KeyCursor builds the durable cursor key for a consumer on a channel.
func KeyCursor(channel, consumer string) []byte {
	k := make([]byte, 0, len(cursorPref)+len(channel)+len(consumer)+1)
	k = append(k, cursorPref...)
	k = append(k, channel...)
	k = append(k, sep)
	k = append(k, consumer...)
	return k
}

// KeyCursorPrefix returns the range prefix of every cursor on a channel.
func KeyCursorPrefix(channel string) []byte {
	k := make([]byte, 0, len(cursorPref)+len(channel)+1)
	k = append(k, cursorPref...)
	k = append(k, channel...)
	k = append(k, sep)
	return k
}

// resetPrefixes lists every keyspace Reset wipes.
func resetPrefixes() [][]byte {
	return [][]byte{chanMetaPref, chanPref, cursorPref}
}

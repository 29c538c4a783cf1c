package eventlog

import (
	"bytes"
	"testing"
)

func TestRecordCRCDetectsCorruption(t *testing.T) {
	rec := EncodeRecord(encodeHeader(42, "order.created"), []byte(`{"a":1}`))
	dec, ok := DecodeRecord(rec)
	if !ok {
		t.Fatalf("decode failed")
	}
	ts, typ, ok := decodeHeader(dec.Header)
	if !ok || ts != 42 || typ != "order.created" {
		t.Fatalf("header mismatch: %d %q %v", ts, typ, ok)
	}
	rec[len(rec)-5] ^= 0xff
	if _, ok := DecodeRecord(rec); ok {
		t.Fatalf("expected crc mismatch")
	}
}

func TestEntryKeysSortByID(t *testing.T) {
	if bytes.Compare(KeyEntry("c", 9), KeyEntry("c", 10)) >= 0 {
		t.Fatalf("entry keys must sort numerically")
	}
	low, high := entryBounds("c")
	k := KeyEntry("c", 1)
	if bytes.Compare(k, low) < 0 || bytes.Compare(k, high) >= 0 {
		t.Fatalf("entry key outside channel bounds")
	}
	if bytes.HasPrefix(KeyCursor("general2", "w"), KeyCursorPrefix("general")) {
		t.Fatalf("cursor prefix leaks across channels")
	}
}

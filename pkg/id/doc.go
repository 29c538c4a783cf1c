// Package id generates sortable request identifiers.
//
// # Format
//
// An ID is 12 bytes big-endian: [6 bytes ms_timestamp][6 bytes counter],
// rendered as 20 characters of Crockford base32. Both the bytes and the text
// sort chronologically, and ids minted within the same millisecond stay
// strictly increasing by counter.
//
// Usage
//
//	g := id.NewGenerator()
//	rid := g.Next().String()
//	// or, with the process-wide generator
//	rid = id.New()
package id

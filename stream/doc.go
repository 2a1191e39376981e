// Package stream provides the lazy chunk-sequence type used for
// incremental unit output. An Iterator is a finite, non-restartable,
// pull-based sequence: the consumer requests one chunk at a time and may
// stop early by closing it, which cancels the producing goroutine.
//
// Producers that generate chunks from a goroutine hand them over via
// FromChan; Chan bridges back to a channel for push-based consumers.
package stream

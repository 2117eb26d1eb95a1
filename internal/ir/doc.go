// Package ir provides the constant value model and canonical encoding used by
// the expression tree.
//
// This package contains value types and serialization only. Every other
// internal package may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - numeric constants are int64
//   - IRNull is an explicit value so that `x == null` survives a round trip
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for fingerprints
package ir

package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode produces deterministic CBOR (sorted map keys, shortest
// integer forms) and keeps nanosecond time precision.
var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("models: invalid canonical CBOR options: %v", err))
	}
	return em
}

// CanonicalCBOR encodes v deterministically. Two structurally equal values
// always yield the same bytes.
func CanonicalCBOR(v interface{}) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

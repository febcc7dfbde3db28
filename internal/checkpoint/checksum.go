package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeChecksum computes the SHA-256 of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// verifyChecksum compares data against a hex checksum from the metadata.
func verifyChecksum(data []byte, stored string) error {
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return fmt.Errorf("%w: malformed stored checksum %q", ErrChecksumMismatch, stored)
	}
	got := ComputeChecksum(data)
	if string(got[:]) != string(want) {
		return ErrChecksumMismatch
	}
	return nil
}

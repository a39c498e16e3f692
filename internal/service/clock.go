package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Clock supplies the current time for deadline checks.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// DefaultEntropy is the entropy source used when none is injected.
var DefaultEntropy io.Reader = rand.Reader

const seedBytes = 32

// drawSeed reads one audit seed from r and hex-encodes it.
func drawSeed(r io.Reader) (string, error) {
	var b [seedBytes]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

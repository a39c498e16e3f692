package game

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/openclaw/wager-server-go/internal/model"
)

const (
	CommitmentSize = 32
	nonceSize      = 32
)

var maxNonce = new(big.Int).Lsh(big.NewInt(1), 8*nonceSize)

// Commitment is a Keccak-256 digest over (choice, nonce, player).
type Commitment [CommitmentSize]byte

func (c Commitment) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// Equal compares in constant time.
func (c Commitment) Equal(other Commitment) bool {
	return subtle.ConstantTimeCompare(c[:], other[:]) == 1
}

// Commit computes keccak256(choice || uint256(nonce) || player). The player
// identity is part of the preimage, so a copied commitment cannot be revealed
// by the opponent.
func Commit(choice model.Choice, nonce *big.Int, player string) Commitment {
	var word [nonceSize]byte
	nonce.FillBytes(word[:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{byte(choice)})
	h.Write(word[:])
	h.Write([]byte(player))

	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// Verify recomputes the commitment for the revealing player.
func Verify(stored Commitment, choice model.Choice, nonce *big.Int, player string) bool {
	return stored.Equal(Commit(choice, nonce, player))
}

// ParseCommitment accepts 64 hex characters with or without a 0x prefix.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 2*CommitmentSize {
		return c, fmt.Errorf("commitment must be %d hex characters", 2*CommitmentSize)
	}
	if _, err := hex.Decode(c[:], []byte(raw)); err != nil {
		return c, fmt.Errorf("commitment is not hex: %w", err)
	}
	if c.IsZero() {
		return c, fmt.Errorf("commitment must not be zero")
	}
	return c, nil
}

// ParseNonce accepts a decimal or 0x-prefixed hex integer in [0, 2^256).
func ParseNonce(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("nonce is empty")
	}

	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("nonce %q is not an integer", s)
	}
	if n.Sign() < 0 || n.Cmp(maxNonce) >= 0 {
		return nil, fmt.Errorf("nonce must be in [0, 2^256)")
	}
	return n, nil
}

// RandomNonce draws a 256-bit nonce from r.
func RandomNonce(r io.Reader) (*big.Int, error) {
	var b [nonceSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return new(big.Int).SetBytes(b[:]), nil
}

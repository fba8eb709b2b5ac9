// Package fair implements the provably-fair crash point and multiplier math.
//
// Every round commits to SHA-256(serverSeed) before bets open and discloses
// both seeds after the crash, so anyone can recompute the crash point and
// check it against the commitment. Note that the client seed is generated
// server-side rather than collected from players, so verification proves the
// outcome was fixed before betting opened but not that players influenced it.
package fair

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

const (
	// growthRate is the exponent coefficient of the multiplier curve,
	// multiplier = e^(growthRate * elapsedMs).
	growthRate = 0.00006

	// hashBits is how many leading bits of the round hash feed the crash
	// point, i.e. the first 13 hex characters.
	hashBits = 52
)

// DeriveCrashPoint computes the crash multiplier for a round. It is a pure
// function of its inputs and bit-reproducible across implementations:
// SHA-256("serverSeed:clientSeed:roundNumber"), leading 52 bits as X,
// crash = max(1.00, floor((99/(1-X/2^52))*(1-houseEdge)*100)/100).
func DeriveCrashPoint(serverSeed, clientSeed string, roundNumber int64, houseEdge float64) float64 {
	combined := fmt.Sprintf("%s:%s:%d", serverSeed, clientSeed, roundNumber)
	hash := sha256.Sum256([]byte(combined))
	hashHex := hex.EncodeToString(hash[:])

	x, _ := strconv.ParseUint(hashHex[:hashBits/4], 16, 64)
	return crashPointFromHashInt(x, houseEdge)
}

func crashPointFromHashInt(x uint64, houseEdge float64) float64 {
	// X == 0 would make the fraction below indistinguishable from 1;
	// crash instantly instead.
	if x == 0 {
		return 1.00
	}

	p := float64(x) / math.Pow(2, hashBits)
	crash := (99 / (1 - p)) * (1 - houseEdge)

	// Truncate toward zero so the house edge is never understated.
	return math.Max(1.00, math.Floor(crash*100)/100)
}

// DeriveMultiplier returns the multiplier after elapsedMs of flight,
// floor(e^(0.00006*t)*100)/100. It is exactly 1.00 at t=0 and monotone
// non-decreasing.
func DeriveMultiplier(elapsedMs int64) float64 {
	return math.Floor(math.Exp(growthRate*float64(elapsedMs))*100) / 100
}

// Verify recomputes the crash point from disclosed seeds and accepts the
// claim within a 0.01 tolerance. The recomputation itself is deterministic;
// the tolerance only covers rounding differences in other implementations.
func Verify(serverSeed, clientSeed string, roundNumber int64, houseEdge, claimedCrashPoint float64) bool {
	calculated := DeriveCrashPoint(serverSeed, clientSeed, roundNumber, houseEdge)
	return math.Abs(calculated-claimedCrashPoint) < 0.01
}

// CommitmentHash returns hex(SHA-256(serverSeed)), published when a round
// opens so the server cannot swap seeds after seeing bets.
func CommitmentHash(serverSeed string) string {
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}

// GenerateServerSeed returns 32 cryptographically random bytes as hex.
func GenerateServerSeed() string {
	return randomHex(32)
}

// GenerateClientSeed returns 16 cryptographically random bytes as hex.
func GenerateClientSeed() string {
	return randomHex(16)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

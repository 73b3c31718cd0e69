package certify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EquationID names the scoring model a certificate was compiled under, so a
// log replayer can reject records from an incompatible scorer.
const EquationID = "IRONCLAD-7D-V1"

// Certificate statuses beyond the breach reasons carried through from the
// scorer.
const (
	StatusVerifiedSafe = "VERIFIED_SAFE"
	StatusUnsafe       = "UNSAFE"
)

// Certificate is one immutable, append-only log record. Records are never
// mutated after compilation; the hash chain makes post-hoc edits evident.
type Certificate struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	EquationID string    `json:"equation_id"`

	HSafety       float64 `json:"h_safety"`
	GoalProximity float64 `json:"goal_proximity"`
	ModelIntent   float64 `json:"model_intent"`
	Consciousness float64 `json:"consciousness"`
	PScore        float64 `json:"p_score"`

	BarrierValue      float64 `json:"barrier_value"`
	BarrierDerivative float64 `json:"barrier_derivative"`
	Margin            float64 `json:"margin"`

	Sim2ValEstimate float64 `json:"sim2val_estimate"`
	Sigma           float64 `json:"sigma"`

	Status   string `json:"status"`
	Verified bool   `json:"verified"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// computeHash hashes the record contents plus PrevHash, chaining each
// certificate to its predecessor. The Hash field itself is excluded.
func (c Certificate) computeHash() string {
	c.Hash = ""
	b, err := json.Marshal(c)
	if err != nil {
		// Certificate contains only scalars and strings; Marshal cannot
		// fail for it. Keep the chain deterministic anyway.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks the hash chain over an ordered certificate log. It
// returns an error naming the first record whose hash or back-link does not
// match.
func VerifyChain(certs []Certificate) error {
	prev := ""
	for i, c := range certs {
		if c.PrevHash != prev {
			return fmt.Errorf("certificate %d (%s): prev_hash mismatch", i, c.ID)
		}
		if got := c.computeHash(); got != c.Hash {
			return fmt.Errorf("certificate %d (%s): hash mismatch", i, c.ID)
		}
		prev = c.Hash
	}
	return nil
}

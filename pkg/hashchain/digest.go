// Package hashchain computes transaction digests for the global ledger chain
// and verifies a chain read back from storage.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// GenesisHash is the previous hash of the first transaction.
const GenesisHash = ""

// TimeLayout is the fixed UTC encoding of created_at inside the digest.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

const sep = "|"

// Canonical returns the fixed-order serialization of the immutable fields of t.
// Status and updated_at are mutable and stay out of it. The description is
// quoted so a separator inside it cannot shift the other fields.
func Canonical(t *domain.Transaction) []byte {
	var b strings.Builder
	b.WriteString(t.ID.String())
	b.WriteString(sep)
	b.WriteString(strconv.FormatInt(t.ChainSeq, 10))
	b.WriteString(sep)
	b.WriteString(optionalID(t.SenderAccountID))
	b.WriteString(sep)
	b.WriteString(optionalID(t.ReceiverAccountID))
	b.WriteString(sep)
	b.WriteString(t.Amount.StringFixed(2))
	b.WriteString(sep)
	b.WriteString(t.Currency)
	b.WriteString(sep)
	b.WriteString(string(t.Type))
	b.WriteString(sep)
	b.WriteString(strconv.Quote(t.Description))
	b.WriteString(sep)
	b.WriteString(FormatTime(t.CreatedAt))
	return []byte(b.String())
}

// Digest is hex(sha256(canonical ‖ previousHash)).
func Digest(t *domain.Transaction) string {
	h := sha256.New()
	h.Write(Canonical(t))
	h.Write([]byte(sep))
	h.Write([]byte(t.PreviousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Link sets PreviousHash, ChainSeq and CurrentHash of t behind the given tail.
func Link(t *domain.Transaction, tailSeq int64, tailHash string) {
	t.ChainSeq = tailSeq + 1
	t.PreviousHash = tailHash
	t.CurrentHash = Digest(t)
}

// NormalizeTime truncates to the precision every supported store keeps.
func NormalizeTime(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}

// FormatTime renders ts in the digest layout.
func FormatTime(ts time.Time) string {
	return NormalizeTime(ts).Format(TimeLayout)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DomainSnapshot prefixes snapshot digests. The version suffix leaves room
// for changing the document encoding.
const DomainSnapshot = "bountyboard/snapshot/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Marshal encodes a bounty as stored. Struct fields encode in declaration
// order and map keys sorted, so equal documents encode to equal bytes.
func Marshal(b *Bounty) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bounty %s: %w", b.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a stored bounty document.
func Unmarshal(data []byte) (*Bounty, error) {
	var b Bounty
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bounty: %w", err)
	}
	return &b, nil
}

// SnapshotHash digests the full document. Two snapshots of the same bounty
// hash equal only if every field is equal.
func SnapshotHash(b *Bounty) (string, error) {
	data, err := Marshal(b)
	if err != nil {
		return "", err
	}
	return HashDocument(data), nil
}

// HashDocument digests an already-encoded document.
func HashDocument(data []byte) string {
	return hashWithDomain(DomainSnapshot, data)
}

// ChangedFields lists the top-level fields whose encoded values differ
// between two encoded documents, in sorted order. A nil prev reports every
// field of next.
func ChangedFields(prev, next []byte) ([]string, error) {
	var before, after map[string]json.RawMessage
	if prev != nil {
		if err := json.Unmarshal(prev, &before); err != nil {
			return nil, fmt.Errorf("decode previous document: %w", err)
		}
	}
	if err := json.Unmarshal(next, &after); err != nil {
		return nil, fmt.Errorf("decode next document: %w", err)
	}

	seen := make(map[string]bool, len(after)+len(before))
	var changed []string
	for k, v := range after {
		seen[k] = true
		if old, ok := before[k]; !ok || string(old) != string(v) {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if !seen[k] {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

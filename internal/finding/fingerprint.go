package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives a stable identity for a finding from the tuple
// spec §4.2 names — (rule_id, normalized_file_path, line_bucket,
// code_context) — so the same underlying issue keeps the same
// fingerprint across rescans even if surrounding lines shift slightly
// or a different scanner happens to flag the identical rule at the
// identical location. The fingerprint identity is the SHA-256 below,
// which is what gets persisted and compared across runs.
func Fingerprint(ruleID, file string, line int, snippet string) string {
	file = filepath.ToSlash(filepath.Clean(file))
	snippet = strings.Join(strings.Fields(snippet), " ")
	key := ruleID + "|" + file + "|" + strconv.Itoa(normalizeLine(line)) + "|" + snippet
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// preHash returns a short xxhash digest of (scanner, rule, file) for
// grouping findings before the full SHA-256 comparison. It is exposed
// only through BucketKey; the pattern store indexes by the full
// fingerprint and does not use it.
func preHash(scanner, ruleID, file string) uint64 {
	return xxhash.Sum64String(scanner + "|" + ruleID + "|" + file)
}

// normalizeLine collapses a finding's line number onto the multiple of
// 5 at or below it (line_bucket = (line/5)*5) so minor line
// drift between rescans does not change the fingerprint.
func normalizeLine(line int) int {
	const bucket = 5
	if line <= 0 {
		return 0
	}
	return (line / bucket) * bucket
}

// BucketKey exposes the pre-hash bucket for index constructions that
// want to group findings before doing exact fingerprint comparison.
func BucketKey(scanner, ruleID, file string) string {
	return fmt.Sprintf("%x", preHash(scanner, ruleID, file))
}

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyReport summarizes a single segment walk: whether the full
// chain validated, and if not, the first line where it broke.
type VerifyReport struct {
	Valid         bool
	ChainBroken   bool
	RecordCount   int
	FirstBrokenAt int // 1-indexed line number, 0 if none
	Err           error
}

// VerifySegment walks path line by line, recomputing each record's
// hash and checking it against the stored hash and against the
// previous record's hash, reporting the first broken link per the
// "walks any segment and reports first broken link" contract.
// encryptionKey must match the SegmentConfig.EncryptionKey the segment
// was written with (nil if lines were written unencrypted).
func VerifySegment(path string, integrityKey, encryptionKey []byte) VerifyReport {
	f, err := os.Open(path)
	if err != nil {
		return VerifyReport{Err: fmt.Errorf("audit: opening segment: %w", err)}
	}
	defer f.Close()

	chain := NewChain(integrityKey)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var (
		lineNo   int
		prevHash string
		report   = VerifyReport{Valid: true}
	)
	for scanner.Scan() {
		lineNo++
		raw, err := decodeLine(scanner.Bytes(), encryptionKey)
		if err != nil {
			report.Valid = false
			report.ChainBroken = true
			if report.FirstBrokenAt == 0 {
				report.FirstBrokenAt = lineNo
			}
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			report.Valid = false
			report.ChainBroken = true
			if report.FirstBrokenAt == 0 {
				report.FirstBrokenAt = lineNo
			}
			continue
		}
		report.RecordCount++

		brokenHere := false
		if !chain.Verify(rec) {
			brokenHere = true
		}
		if lineNo > 1 && rec.PrevHash != prevHash {
			brokenHere = true
		}
		if brokenHere {
			report.Valid = false
			report.ChainBroken = true
			if report.FirstBrokenAt == 0 {
				report.FirstBrokenAt = lineNo
			}
		}
		prevHash = rec.Hash
	}
	if err := scanner.Err(); err != nil {
		report.Err = fmt.Errorf("audit: scanning segment: %w", err)
	}
	return report
}

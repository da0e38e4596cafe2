// Package audit implements the engine's append-only event log: one
// HMAC-chained record per risk/lifecycle event, written to per-day
// rotating segments with recursive sensitive-field redaction and an
// offline integrity verifier.
//
// risk.Event travels the event spine pre-hash; this package is where
// its hash/prev_hash pair is actually computed and persisted, per the
// comment on risk.Event itself.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Record is one line of the on-disk audit log. Field names are fixed
// by the wire contract: {id, ts, kind, level, data, meta, prev_hash, hash}.
type Record struct {
	ID       string                 `json:"id"`
	TsMs     int64                  `json:"ts"`
	Kind     string                 `json:"kind"`
	Level    string                 `json:"level"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	PrevHash string                 `json:"prev_hash,omitempty"`
	Hash     string                 `json:"hash"`
}

// sensitiveFields names the keys redacted recursively wherever they
// appear in Data or Meta, case-insensitively.
var sensitiveFields = map[string]bool{
	"password": true, "secret": true, "api_key": true, "apikey": true,
	"passphrase": true, "token": true, "authorization": true,
	"private_key": true, "privatekey": true,
}

// maxRedactDepth caps recursion into nested maps/slices so a
// maliciously or accidentally deep payload can't blow the stack.
const maxRedactDepth = 8

const redactedPlaceholder = "[redacted]"

// Redact returns a deep copy of v with sensitive keys replaced, walking
// maps and slices up to maxRedactDepth levels.
func Redact(v map[string]interface{}) map[string]interface{} {
	return redactMap(v, 0)
}

func redactMap(m map[string]interface{}, depth int) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if sensitiveFields[lower(k)] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v, depth+1)
	}
	return out
}

func redactValue(v interface{}, depth int) interface{} {
	if depth > maxRedactDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return redactMap(t, depth)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = redactValue(e, depth+1)
		}
		return out
	default:
		return v
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Chain computes the HMAC-SHA256 chain hash over a record, per
// hash = HMAC(integrity_key, record_without_hash). The hash field
// itself is never part of the MAC input.
type Chain struct {
	key []byte
}

// NewChain constructs a Chain keyed with integrityKey, the
// audit-integrity secret resolved from the environment at startup.
func NewChain(integrityKey []byte) *Chain {
	return &Chain{key: integrityKey}
}

// Seal fills rec.Hash from rec.PrevHash and every other field, in
// place, and returns the record for chaining convenience.
func (c *Chain) Seal(rec *Record) (*Record, error) {
	rec.Hash = ""
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal record for hashing: %w", err)
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	rec.Hash = hex.EncodeToString(mac.Sum(nil))
	return rec, nil
}

// Verify recomputes rec's hash (with PrevHash as supplied) and
// compares it against rec.Hash using a constant-time comparison.
func (c *Chain) Verify(rec Record) bool {
	want := rec.Hash
	got, err := c.Seal(&rec)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(got.Hash))
}

// Sink is the audit-sink writer task: it owns the hash chain and the
// active log segment and serializes every Append call through a single
// mutex, matching the "audit-chain hash sequence is serialized through
// a single writer" ordering guarantee.
type Sink struct {
	mu       sync.Mutex
	chain    *Chain
	writer   *segmentWriter
	lastHash string
	fallback *ForwardingLogger
}

// NewSink opens (or creates) the writer for dir under cfg and wires a
// logrus-based fallback sink that mirrors every record, so an audit
// write failure never hides an event from operators entirely.
func NewSink(dir string, integrityKey []byte, cfg SegmentConfig) (*Sink, error) {
	w, err := newSegmentWriter(dir, cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{
		chain:    NewChain(integrityKey),
		writer:   w,
		fallback: NewForwardingLogger(),
	}, nil
}

// Append redacts data/meta, seals the record into the hash chain, and
// persists it to the active segment.
func (s *Sink) Append(kind, level string, data, meta map[string]interface{}) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		ID:       newRecordID(),
		TsMs:     nowMs(),
		Kind:     kind,
		Level:    level,
		Data:     Redact(data),
		Meta:     Redact(meta),
		PrevHash: s.lastHash,
	}
	if _, err := s.chain.Seal(&rec); err != nil {
		return Record{}, err
	}
	if err := s.writer.WriteLine(rec); err != nil {
		s.fallback.Forward(rec.Kind, rec.Level, fmt.Sprintf("audit write failed: %v", err))
		return Record{}, fmt.Errorf("audit: write record: %w", err)
	}
	s.lastHash = rec.Hash
	s.fallback.Forward(rec.Kind, rec.Level, rec.ID)
	return rec, nil
}

// Close flushes and closes the active segment.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

// RiskEvent is the subset of risk.Event the audit sink needs; defined
// locally (rather than importing internal/risk) so the audit package
// has no dependency on the risk pipeline's types and can subscribe to
// any spine topic that shapes its payload this way.
type RiskEvent struct {
	Module  string
	Kind    string
	Level   string
	Symbol  string
	Account string
	TsMs    int64
	Payload map[string]interface{}
}

// AppendRiskEvent seals and persists a risk-pipeline event, folding its
// module/symbol/account identifiers into Meta so Data carries only the
// event's own payload.
func (s *Sink) AppendRiskEvent(ev RiskEvent) (Record, error) {
	meta := map[string]interface{}{"module": ev.Module}
	if ev.Symbol != "" {
		meta["symbol"] = ev.Symbol
	}
	if ev.Account != "" {
		meta["account"] = ev.Account
	}
	return s.Append(ev.Kind, ev.Level, ev.Payload, meta)
}

var idCounter struct {
	mu  sync.Mutex
	seq uint64
}

// newRecordID produces a monotonically increasing, process-unique ID;
// the wire contract only requires uniqueness and ordering, not any
// particular external ID scheme.
func newRecordID() string {
	idCounter.mu.Lock()
	idCounter.seq++
	seq := idCounter.seq
	idCounter.mu.Unlock()
	return fmt.Sprintf("%d-%06d", time.Now().UnixNano(), seq)
}

func nowMs() int64 { return time.Now().UnixMilli() }

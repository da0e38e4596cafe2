package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainSealVerify(t *testing.T) {
	chain := NewChain([]byte("integrity-key"))
	rec := Record{ID: "1", TsMs: 1000, Kind: "riskDenied", Level: "warn", Data: map[string]interface{}{"x": 1.0}}
	sealed, err := chain.Seal(&rec)
	require.NoError(t, err)
	assert.NotEmpty(t, sealed.Hash)
	assert.True(t, chain.Verify(*sealed))

	tampered := *sealed
	tampered.Data["x"] = 2.0
	assert.False(t, chain.Verify(tampered))
}

func TestRedactRecursive(t *testing.T) {
	in := map[string]interface{}{
		"symbol":   "BTC-USDT",
		"password": "hunter2",
		"nested": map[string]interface{}{
			"api_key": "abc123",
			"qty":     1.5,
		},
		"list": []interface{}{
			map[string]interface{}{"token": "xyz"},
		},
	}
	out := Redact(in)
	assert.Equal(t, "BTC-USDT", out["symbol"])
	assert.Equal(t, redactedPlaceholder, out["password"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, redactedPlaceholder, nested["api_key"])
	assert.Equal(t, 1.5, nested["qty"])
	list := out["list"].([]interface{})
	assert.Equal(t, redactedPlaceholder, list[0].(map[string]interface{})["token"])
}

func TestSinkAppendChainsRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, []byte("k"), SegmentConfig{Prefix: "test"})
	require.NoError(t, err)
	defer sink.Close()

	r1, err := sink.Append("orderFilled", "info", map[string]interface{}{"qty": 1.0}, nil)
	require.NoError(t, err)
	r2, err := sink.Append("orderFilled", "info", map[string]interface{}{"qty": 2.0}, nil)
	require.NoError(t, err)

	assert.Empty(t, r1.PrevHash)
	assert.Equal(t, r1.Hash, r2.PrevHash)
	assert.NotEqual(t, r1.Hash, r2.Hash)
}

func TestVerifySegmentDetectsTamper(t *testing.T) {
	dir := t.TempDir()
	key := []byte("k")
	sink, err := NewSink(dir, key, SegmentConfig{Prefix: "test"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := sink.Append("riskDenied", "warn", map[string]interface{}{"i": float64(i)}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, entries[0].Name())

	report := VerifySegment(path, key, nil)
	assert.True(t, report.Valid)
	assert.Equal(t, 5, report.RecordCount)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0600))

	report = VerifySegment(path, key, nil)
	assert.False(t, report.Valid)
	assert.True(t, report.ChainBroken)
	assert.Greater(t, report.FirstBrokenAt, 0)
}

func TestSegmentFilePermissions(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir, []byte("k"), SegmentConfig{Prefix: "test"})
	require.NoError(t, err)
	_, err = sink.Append("info", "info", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEncryptedLineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sink, err := NewSink(dir, []byte("k"), SegmentConfig{Prefix: "enc", EncryptionKey: key})
	require.NoError(t, err)
	_, err = sink.Append("info", "info", map[string]interface{}{"secret": "shh"}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, entries[0].Name())

	report := VerifySegment(path, []byte("k"), key)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.RecordCount)
}

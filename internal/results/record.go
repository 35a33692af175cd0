package results

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Record is the persisted outcome of one successfully tagged asset. It is
// keyed by FeatureID, the handle the analysis service assigned.
type Record struct {
	Tags      []tagtypes.Entry `json:"tags"`
	FileName  string           `json:"file_name"`
	FeatureID string           `json:"feature_id"`
}

// Store persists records and enumerates them back in key order.
type Store interface {
	Put(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
	Location() string
}

const recordExt = ".json"

func encodeRecord(rec Record) ([]byte, error) {
	if strings.TrimSpace(rec.FeatureID) == "" {
		return nil, services.Wrap(services.ErrValidation, "persist", "", "record has no feature id", nil)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.FeatureID, err)
	}
	return buf.Bytes(), nil
}

// decodeRecord parses a stored record. A missing feature_id falls back to the
// key the record was stored under.
func decodeRecord(key string, data []byte) (Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return Record{}, services.Wrap(services.ErrValidation, "load", "decode record", key, err)
	}
	if strings.TrimSpace(rec.FeatureID) == "" {
		rec.FeatureID = key
	}
	return rec, nil
}

// SafeKey maps a handle to a name usable as a file or object key. A handle
// that has to be rewritten gets a short hash suffix so distinct handles never
// share a key.
func SafeKey(handle string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")
	key := replacer.Replace(strings.TrimSpace(handle))
	if key == "" || key == "." || key == ".." {
		key = "_"
	}
	if key == handle {
		return key
	}
	sum := sha256.Sum256([]byte(handle))
	return key + "-" + hex.EncodeToString(sum[:4])
}

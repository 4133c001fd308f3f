// Package canonical provides deterministic JSON canonicalization and hashing,
// the basis of snapshot and manifest tamper-evidence.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Canonicalize serializes v to a canonical JSON string: object keys are
// recursively sorted, array order is preserved. Two logically identical
// structures with differently ordered keys produce identical output.
func Canonicalize(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "canonical: marshal value")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return "", eris.Wrap(err, "canonical: decode value")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, decoded); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Hash returns the lowercase hex SHA-256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the lowercase hex SHA-256 digest of raw content.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and hashes the result in one step.
func HashValue(v any) (string, error) {
	s, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(s), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, _ := json.Marshal(t)
		buf.Write(b)
	case json.Number:
		buf.WriteString(t.String())
	case []any:
		buf.WriteString("[")
		for i, vv := range t {
			if i > 0 {
				buf.WriteString(",")
			}
			if err := writeCanonical(buf, vv); err != nil {
				return err
			}
		}
		buf.WriteString("]")
	case map[string]any:
		buf.WriteString("{")
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(",")
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteString(":")
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteString("}")
	default:
		return eris.Errorf("canonical: unsupported JSON type %T", v)
	}
	return nil
}

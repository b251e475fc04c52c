package walletrpc

import (
	"bytes"
	"encoding/json"
	"math/big"
)

// decodeGeneric unmarshals into a generic interface{} using json.Number
// for numeric literals, so atomic amounts that exceed float64's 53-bit
// mantissa survive the round trip through map[string]interface{}.
func decodeGeneric(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// toArray implements the "response shape normalization" rule from §4.3:
// the deposits/transfers array may be the result itself, a direct field,
// or nested one level under a "result" field, under any of several
// aliases the daemon build in question happens to use.
func toArray(raw json.RawMessage, directKeys, nestedKeys []string) []map[string]interface{} {
	var asArray []map[string]interface{}
	if err := decodeGeneric(raw, &asArray); err == nil {
		return asArray
	}

	var asObject map[string]interface{}
	if err := decodeGeneric(raw, &asObject); err != nil {
		return nil
	}

	for _, k := range directKeys {
		if arr, ok := toMapSlice(asObject[k]); ok {
			return arr
		}
	}
	if nested, ok := asObject["result"].(map[string]interface{}); ok {
		for _, k := range nestedKeys {
			if arr, ok := toMapSlice(nested[k]); ok {
				return arr
			}
		}
	}
	return nil
}

func toMapSlice(v interface{}) ([]map[string]interface{}, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, true
}

var (
	hashAliases          = []string{"hash", "tx_hash", "txHash", "txid", "transactionHash"}
	amountAliases        = []string{"amountAtomic", "amount_atomic", "amount", "value"}
	confirmationsAliases = []string{"confirmations", "conf", "num_confirmations", "confirmations_count", "confirmed"}
)

func getString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func getBigInt(m map[string]interface{}, keys ...string) *big.Int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			n, ok := new(big.Int).SetString(t, 10)
			if ok {
				return n
			}
		case json.Number:
			n, ok := new(big.Int).SetString(t.String(), 10)
			if ok {
				return n
			}
		case float64:
			return new(big.Int).SetInt64(int64(t))
		}
	}
	return nil
}

func getInt64Ptr(m map[string]interface{}, keys ...string) *int64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			n := int64(t)
			return &n
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return &n
			}
		case string:
			if n, ok := new(big.Int).SetString(t, 10); ok {
				v := n.Int64()
				return &v
			}
		}
	}
	return nil
}

func getBool(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}

package kv

import "strconv"

// The scan cursor is a plain decimal string so it round-trips through any
// KV transport, including the reference HTTPS/REST deployment mentioned in
// the External Interfaces section, without needing a binary encoding.
func parseCursor(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func formatCursor(c uint64) string {
	return strconv.FormatUint(c, 10)
}

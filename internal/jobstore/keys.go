// Package jobstore implements the Data Model: the Job, Status and Seen
// entities, their KV key patterns, and the encode/decode glue between Go
// structs and the string-typed hash/string values the KV Abstraction
// deals in.
package jobstore

import "strings"

// JobKey, StatusKey, SeenKey and LedgerKey reproduce the key patterns in
// §3 exactly; every caller goes through these instead of formatting keys
// inline so the namespace stays in one place.
func JobKey(prefix, ticker, paymentId string) string {
	return prefix + ":deposit:" + ticker + ":" + paymentId
}

func JobScanPattern(prefix, ticker string) string {
	return prefix + ":deposit:" + ticker + ":*"
}

func StatusKey(prefix, ticker, paymentId string) string {
	return prefix + ":transaction:status:" + ticker + ":" + paymentId
}

func SeenKey(prefix, hash string) string {
	return prefix + ":seen:" + hash
}

func LedgerKey(prefix, ticker, hash string) string {
	return prefix + ":deposit:ledger:" + ticker + ":" + hash
}

// PaymentIDFromJobKey extracts the trailing paymentId segment from a key
// produced by JobKey/JobScanPattern, as returned by a Scan call.
func PaymentIDFromJobKey(prefix, ticker, key string) string {
	p := prefix + ":deposit:" + ticker + ":"
	if !strings.HasPrefix(key, p) {
		return ""
	}
	return key[len(p):]
}

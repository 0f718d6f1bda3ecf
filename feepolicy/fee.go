// Package feepolicy converts a transaction's byte size into a minimum-unit
// fee, matching the behavior of the reference Bitcoin-derived client: a
// linear rate expressed in minimum units per 1000 bytes, rounded down, with
// a floor of one rate unit so a tiny transaction is never charged zero fee.
package feepolicy

// FeeForSize returns the fee, in minimum units, for a transaction of the
// given byte size at the given rate (minimum units per 1000 bytes).
//
// fee = floor(rate*bytes/1000), floored up to rate itself when that would
// otherwise round to zero and rate > 0. Callers typically pass 1000 bytes
// for refund-shaped single-input single-output transactions and 2000 bytes
// for commitment transactions that still need coin selection.
func FeeForSize(bytes int, rate int64) int64 {
	if bytes <= 0 || rate <= 0 {
		return 0
	}
	fee := (rate * int64(bytes)) / 1000
	if fee == 0 {
		return rate
	}
	return fee
}

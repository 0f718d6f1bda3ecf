package engine

import "github.com/rnicoll/cate/cateerrs"

// Role identifies which side of a trade the local process is playing,
// inferred from which keypair slot the local store holds rather than
// from an operator-supplied flag, since a process only ever generates
// one of the two per spec.md §4.7.
type Role int

const (
	RoleUnknown Role = iota
	RoleOfferer      // A: wrote slotOfferPrivateKey via Offer.
	RoleAccepter     // B: wrote slotAcceptPrivateKey via handleOfferLocked.
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAccepter:
		return "accepter"
	default:
		return "unknown"
	}
}

// RoleFor reports which side of tradeID the local store belongs to, for
// callers (the CLI's claim/refund commands) that need to pick between
// ClaimOfferCommitment/ClaimAskCommitment or RefundA/RefundB without the
// operator having to say which role they are.
func (e *Engine) RoleFor(tradeID string) (Role, error) {
	isOfferer, err := e.has(tradeID, slotOfferPrivateKey)
	if err != nil {
		return RoleUnknown, err
	}
	if isOfferer {
		return RoleOfferer, nil
	}
	isAccepter, err := e.has(tradeID, slotAcceptPrivateKey)
	if err != nil {
		return RoleUnknown, err
	}
	if isAccepter {
		return RoleAccepter, nil
	}
	return RoleUnknown, cateerrs.Audit("trade %s has no local keypair; offer/accept has not run", tradeID)
}

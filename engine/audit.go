package engine

// auditSlots lists every slot cate ever writes, in protocol order, so
// Audit can report a trade's progress without either party's operator
// needing to know the slot-naming scheme (spec.md §4.6's append-only
// audit record).
var auditSlots = []string{
	slotOffer,
	slotOfferPrivateKey,
	slotPeerOffer,
	slotAcceptance,
	slotSecret,
	slotAcceptPrivateKey,
	slotTx1,
	slotPeerAcceptance,
	slotTx3,
	slotConfirmation,
	slotPeerConfirmation,
	slotTx2,
	slotCoinsSent,
	slotSendNotification,
	slotTx4,
	slotCompleteB,
	slotCompleteA,
	slotRefundB,
	slotRefundA,
}

// SlotStatus reports whether one audit slot has been written for a trade.
type SlotStatus struct {
	Slot    string
	Present bool
}

// Audit reports the write-once status of every slot cate knows about for
// tradeID, in protocol order, for operator inspection (spec.md §4.6).
func (e *Engine) Audit(tradeID string) ([]SlotStatus, error) {
	statuses := make([]SlotStatus, 0, len(auditSlots))
	for _, slot := range auditSlots {
		present, err := e.has(tradeID, slot)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, SlotStatus{Slot: slot, Present: present})
	}
	return statuses, nil
}

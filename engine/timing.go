package engine

import (
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/rnicoll/cate/cateerrs"
)

// refundWindow is the lock-time delta used for both refund transactions,
// per spec.md §4.1 invariant 6's design recommendation ("both 48h"). It
// sits inside swap.ValidateRefund's accepted 12h-72h band with comfortable
// margin on both sides.
const refundWindow = 48 * time.Hour

// RefundDeltaSeconds is the default value for Engine.RefundDelta: the δ
// of 1 hour SPEC_FULL.md §8 Open Question 2 settled on for the TX2/TX4
// lock-time relationship check.
const RefundDeltaSeconds = int64(time.Hour / time.Second)

// refundLockTimeFor returns the Unix lock time for a refund transaction
// unlocking window after clk.Now().
func refundLockTimeFor(clk clock.Clock, window time.Duration) int64 {
	return clk.Now().Add(window).Unix()
}

// lockTimeElapsed reports an error unless tx's nLockTime has passed
// according to clk, the gate a recovery handler checks before broadcasting
// a refund (spec.md §5: "the aggrieved party's recovery handler fires as
// soon as local wall time ≥ refund lock time").
func lockTimeElapsed(clk clock.Clock, tx *wire.MsgTx) error {
	lockTime := time.Unix(int64(tx.LockTime), 0)
	if clk.Now().Before(lockTime) {
		return cateerrs.Trade("refund lock time %s has not yet elapsed", lockTime)
	}
	return nil
}

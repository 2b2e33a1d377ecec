package matcher

import (
	"errors"
	"fmt"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
	"github.com/nereus-network/nereus/internal/util"
)

type (
	// Event is one of the three order lifecycle events produced by the
	// matching engine.
	Event interface {
		isEvent()
	}

	// OrderAdded installs a new resting order, reserving its full obligation.
	// Re-adding an id that is already tracked and not cancelled is a no-op:
	// the engine re-publishes the submitted remainder after an execution.
	OrderAdded struct {
		Order *Order
	}

	// OrderExecuted fills the submitted order against the resting counter
	// order.
	OrderExecuted struct {
		Submitted *Order
		Counter   *Order
	}

	// OrderCancelled takes the order off the book. Unmatchable marks cancels
	// issued by the engine itself for orders that can never execute.
	OrderCancelled struct {
		Order       *Order
		Unmatchable bool
	}

	// Remaining describes the unfilled part of an order after an execution,
	// for the engine to re-offer via OrderAdded.
	Remaining struct {
		Order  *Order
		Amount int64
		Fee    int64
	}

	// ExecutionResult reports the outcome of an OrderExecuted event.
	ExecutionResult struct {
		ExecutedAmount     int64
		SubmittedRemaining Remaining
		CounterRemaining   Remaining
	}
)

func (OrderAdded) isEvent()     {}
func (OrderExecuted) isEvent()  {}
func (OrderCancelled) isEvent() {}

// ProcessEvent dispatches ev to the matching typed handler.
func (h *OrderHistory) ProcessEvent(ev Event) error {
	switch e := ev.(type) {
	case OrderAdded:
		return h.ProcessOrderAdded(e.Order)
	case OrderExecuted:
		_, err := h.ProcessOrderExecuted(e.Submitted, e.Counter)
		return err
	case OrderCancelled:
		return h.ProcessOrderCancelled(e.Order, e.Unmatchable)
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
}

// ProcessOrderAdded installs lo unless it is already tracked and not
// cancelled.
func (h *OrderHistory) ProcessOrderAdded(lo *Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, found, err := h.OrderInfo(lo.ID)
	if err != nil {
		return err
	}
	if found && old.Status() != Cancelled {
		log.Debug("order %x re-added with status %s, ignoring", lo.ID, old.Status())
		return nil
	}

	tx, err := h.db.StartTx()
	if err != nil {
		return fmt.Errorf("order added tx start failed, %w", err)
	}
	if err := h.installOrder(tx, lo, found); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order added commit failed, %w", err)
	}
	log.Debug("order %x accepted: %s %d @ %d", lo.ID, lo.Side, lo.Amount, lo.Price)
	return nil
}

// ProcessOrderExecuted applies a fill to both sides, prorating fees and
// releasing the covered part of each side's obligations. A submitted order
// that was never added is accounted from scratch in the same transaction.
func (h *OrderHistory) ProcessOrderExecuted(submitted, counter *Order) (*ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subOld, subFound, err := h.OrderInfo(submitted.ID)
	if err != nil {
		return nil, err
	}
	ctrOld, ctrFound, err := h.OrderInfo(counter.ID)
	if err != nil {
		return nil, err
	}
	if !subFound {
		subOld = newOrderInfo(submitted)
	}
	if !ctrFound {
		ctrOld = newOrderInfo(counter)
	}

	executed := correctAmount(util.Min(subOld.Remaining(), ctrOld.Remaining()), counter.Price)

	tx, err := h.db.StartTx()
	if err != nil {
		return nil, fmt.Errorf("order executed tx start failed, %w", err)
	}
	subNew, err := h.applyFill(tx, submitted, subOld, subFound, executed)
	if err != nil {
		return nil, errors.Join(err, tx.Rollback())
	}
	ctrNew, err := h.applyFill(tx, counter, ctrOld, ctrFound, executed)
	if err != nil {
		return nil, errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("order executed commit failed, %w", err)
	}
	log.Debug("executed %d of %x against %x (submitted %s, counter %s)",
		executed, submitted.ID, counter.ID, subNew.Status(), ctrNew.Status())
	return &ExecutionResult{
		ExecutedAmount:     executed,
		SubmittedRemaining: Remaining{Order: submitted, Amount: subNew.Remaining(), Fee: subNew.RemainingFee},
		CounterRemaining:   Remaining{Order: counter, Amount: ctrNew.Remaining(), Fee: ctrNew.RemainingFee},
	}, nil
}

// ProcessOrderCancelled releases the order's outstanding obligations and
// marks it cancelled. Terminal and unknown orders are left untouched.
func (h *OrderHistory) ProcessOrderCancelled(lo *Order, unmatchable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, found, err := h.OrderInfo(lo.ID)
	if err != nil {
		return err
	}
	if !found || old.Status().Terminal() {
		return nil
	}
	updated := old
	updated.Canceled = true

	tx, err := h.db.StartTx()
	if err != nil {
		return fmt.Errorf("order cancelled tx start failed, %w", err)
	}
	if err := h.writeOrderState(tx, lo, old, true, updated); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order cancelled commit failed, %w", err)
	}
	log.Debug("order %x cancelled at fill %d (unmatchable=%v)", lo.ID, updated.Filled, unmatchable)
	return nil
}

// installOrder writes the fresh state of lo and reserves its full obligation.
// existed is true when a cancelled prior incarnation is being replaced.
func (h *OrderHistory) installOrder(tx keyvaluedb.DBTransaction, lo *Order, existed bool) error {
	return h.writeOrderState(tx, lo, OrderInfo{}, existed, newOrderInfo(lo))
}

// applyFill advances one side of an execution by the executed amount.
func (h *OrderHistory) applyFill(tx keyvaluedb.DBTransaction, o *Order, old OrderInfo, existed bool, executed int64) (OrderInfo, error) {
	updated := old
	updated.Filled += executed
	updated.RemainingFee = prorateFee(o.MatcherFee, updated.Remaining(), updated.Amount)
	spent := int64(0)
	if old.UnsafeTotalSpend != nil {
		spent = *old.UnsafeTotalSpend
	}
	spent += o.SpendAmount(executed)
	updated.UnsafeTotalSpend = &spent
	return updated, h.writeOrderState(tx, o, old, existed, updated)
}

// writeOrderState persists the state transition old->updated of order o:
// the info record, the meta record, both indices and the reserved balance
// deltas, all inside tx.
func (h *OrderHistory) writeOrderState(tx keyvaluedb.DBTransaction, o *Order, old OrderInfo, existed bool, updated OrderInfo) error {
	if err := tx.Write(orderInfoKey(o.ID), &updated); err != nil {
		return fmt.Errorf("order info write failed, %w", err)
	}
	if err := tx.Write(orderMetaKey(o.ID), o); err != nil {
		return fmt.Errorf("order meta write failed, %w", err)
	}
	status := updated.Status()
	if err := tx.Write(indexKey(prefixAllIndex, o.SenderPublicKey, o.Timestamp, o.ID), status); err != nil {
		return fmt.Errorf("order index write failed, %w", err)
	}
	activeKey := indexKey(prefixActiveIndex, o.SenderPublicKey, o.Timestamp, o.ID)
	if status.Terminal() {
		if err := tx.Delete(activeKey); err != nil {
			return fmt.Errorf("active index delete failed, %w", err)
		}
	} else if err := tx.Write(activeKey, status); err != nil {
		return fmt.Errorf("active index write failed, %w", err)
	}
	return h.applyReservedDelta(tx, o, old, existed, updated)
}

// applyReservedDelta moves the account's reserved balances by the obligation
// difference between the old and the updated state. For an order that was not
// tracked before, the old obligation is zero by definition.
func (h *OrderHistory) applyReservedDelta(tx keyvaluedb.DBTransaction, o *Order, old OrderInfo, existed bool, updated OrderInfo) error {
	deltas := obligations(o, updated)
	if existed {
		for asset, amount := range obligations(o, old) {
			deltas[asset] -= amount
		}
	}
	for asset, delta := range deltas {
		if delta == 0 {
			continue
		}
		key := reservedKey(o.SenderPublicKey, assetFromKey(asset))
		var reserved int64
		if _, err := tx.Read(key, &reserved); err != nil {
			return fmt.Errorf("reserved balance read failed, %w", err)
		}
		reserved += delta
		if reserved < 0 {
			return fmt.Errorf("account %s asset %s delta %d: %w",
				o.SenderPublicKey, assetFromKey(asset), delta, ErrNegativeReserve)
		}
		if reserved == 0 {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("reserved balance delete failed, %w", err)
			}
			continue
		}
		if err := tx.Write(key, reserved); err != nil {
			return fmt.Errorf("reserved balance write failed, %w", err)
		}
	}
	return nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// propagateChain runs linked-order bookkeeping after every fill application
// (partial fills included), inside the fill transaction.
//
//   - Any fill on an order with children activates them (new -> working) and
//     stamps a shared chain id on the family.
//   - A fill on a bracket/otoco child, or any tp/sl child, cancels its open
//     siblings (the one-cancels-other leg).
//   - A fill on an oco child cancels its open siblings.
//   - A fill on an oto child activates siblings still in new.
func (e *Engine) propagateChain(ctx context.Context, tx Store, order *models.Order, now time.Time) error {
	children, err := tx.ListChildOrders(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to list child orders of %d: %w", order.ID, err)
	}
	if len(children) > 0 {
		chainID := order.ChainID
		if chainID == "" {
			chainID = uuid.New().String()
			order.ChainID = chainID
		}
		activated := 0
		for _, child := range children {
			child.ChainID = chainID
			if child.Status == models.OrderStatusNew {
				child.Status = models.OrderStatusWorking
				child.AppendEvent(models.OrderEvent{
					Type:    models.EventChainAction,
					Action:  "activated",
					OrderID: order.ID,
					At:      now,
				})
				activated++
			}
			if err := tx.UpdateOrder(ctx, child); err != nil {
				return fmt.Errorf("failed to activate child order %d: %w", child.ID, err)
			}
		}
		if activated > 0 {
			order.AppendEvent(models.OrderEvent{
				Type:    models.EventChainAction,
				Action:  "children_activated",
				Message: fmt.Sprintf("%d children activated", activated),
				At:      now,
			})
		}
	}

	if order.ParentID == nil {
		return nil
	}
	parent, err := tx.GetOrder(ctx, *order.ParentID)
	if err != nil {
		return fmt.Errorf("failed to load parent order %d: %w", *order.ParentID, err)
	}

	cancelSiblings := parent.OrderType == models.OrderTypeBracket ||
		parent.OrderType == models.OrderTypeOTOCO ||
		parent.OrderType == models.OrderTypeOCO ||
		order.ChildRole == models.ChildRoleTP ||
		order.ChildRole == models.ChildRoleSL
	activateSiblings := parent.OrderType == models.OrderTypeOTO

	// The entry leg of a bracket/otoco activates its exit siblings instead
	// of canceling them.
	if order.ChildRole == models.ChildRoleEntry {
		cancelSiblings = false
		activateSiblings = true
	}
	if !cancelSiblings && !activateSiblings {
		return nil
	}

	siblings, err := tx.ListChildOrders(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("failed to list siblings of order %d: %w", order.ID, err)
	}
	changed := 0
	for _, sibling := range siblings {
		if sibling.ID == order.ID {
			continue
		}
		if order.ChainID != "" {
			sibling.ChainID = order.ChainID
		}
		switch {
		case cancelSiblings && sibling.IsOpen():
			sibling.Status = models.OrderStatusCanceled
			sibling.AppendEvent(models.OrderEvent{
				Type:    models.EventChainAction,
				Action:  "canceled_by_sibling",
				OrderID: order.ID,
				At:      now,
			})
		case activateSiblings && sibling.Status == models.OrderStatusNew:
			sibling.Status = models.OrderStatusWorking
			sibling.AppendEvent(models.OrderEvent{
				Type:    models.EventChainAction,
				Action:  "activated",
				OrderID: order.ID,
				At:      now,
			})
		default:
			continue
		}
		changed++
		if err := tx.UpdateOrder(ctx, sibling); err != nil {
			return fmt.Errorf("failed to update sibling order %d: %w", sibling.ID, err)
		}
	}
	if changed == 0 {
		return nil
	}

	// The parent's audit log records what the fill did to the family.
	action := "cancel"
	if activateSiblings {
		action = "activate"
	}
	if order.ChainID != "" {
		parent.ChainID = order.ChainID
	}
	parent.AppendEvent(models.OrderEvent{
		Type:    models.EventChainAction,
		Action:  action,
		OrderID: order.ID,
		Message: fmt.Sprintf("%d siblings of order %d updated", changed, order.ID),
		At:      now,
	})
	if err := tx.UpdateOrder(ctx, parent); err != nil {
		return fmt.Errorf("failed to update parent order %d: %w", parent.ID, err)
	}
	return nil
}

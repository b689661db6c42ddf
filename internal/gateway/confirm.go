package gateway

import (
	"context"
	"fmt"
)

// Impact levels of a confirmation.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
)

// Confirmation describes an action awaiting operator approval.
type Confirmation struct {
	ItemDescription   string `json:"item_description"`
	ActionDescription string `json:"action_description"`
	Subject           string `json:"subject"`
	Impact            string `json:"impact"`
	Message           string `json:"message"`
}

// Confirmer asks for approval of an action.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, c Confirmation) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, c Confirmation) (bool, error) { return f(ctx, c) }

// AutoConfirm approves (true) or declines (false) every request.
func AutoConfirm(approve bool) Confirmer {
	return ConfirmFunc(func(context.Context, Confirmation) (bool, error) { return approve, nil })
}

// RemovalConfirmation is the descriptor shown before removing hostname from
// its gateway group.
func RemovalConfirmation(hostname string) Confirmation {
	return Confirmation{
		ItemDescription:   "gateway node",
		ActionDescription: "remove",
		Subject:           hostname,
		Impact:            ImpactHigh,
		Message: fmt.Sprintf("Removing %s will detach it from the gateway group and stop handling new I/O requests. "+
			"Active connections may be disrupted. You can re-add this node later if required.", hostname),
	}
}

// Package dispatch is the boundary to the external message-delivery
// collaborator. The engine decides that and what to send; everything about
// how — copy generation, push transport — happens on the other side of the
// Dispatcher interface. Delivery is best-effort: a failed Send never rolls
// back the cooldown claim.
package dispatch

import (
	"context"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// Dispatcher hands a claimed message to the delivery collaborator.
type Dispatcher interface {
	Send(ctx context.Context, req model.MessageRequest) error
}

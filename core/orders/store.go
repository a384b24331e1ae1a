package orders

import (
	"context"
	"errors"

	"github.com/openrec/lemd/core/model"
)

// ErrNotFound is returned when an order id is unknown to the store.
var ErrNotFound = errors.New("orders: order not found")

// Store persists orders and their result rows. An order is created pending
// and transitions exactly once, to done-ok together with its rows or to
// done-error with an error kind and message.
type Store interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// CompleteOrder writes the result rows and flips the order to done-ok in
	// one transaction.
	CompleteOrder(ctx context.Context, id string, rows *model.ResultRows) error
	FailOrder(ctx context.Context, id string, kind model.ErrorKind, message string) error
	ResultRows(ctx context.Context, id string) (*model.ResultRows, error)
}

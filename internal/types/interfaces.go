// internal/types/interfaces.go
package types

import (
	"context"
)

type EventLog interface {
	Append(ctx context.Context, rec *Record) error
	LoadAll(ctx context.Context) ([]*Record, error)
	ReplaceAll(ctx context.Context, recs []*Record) error
}

type Deliverer interface {
	Deliver(ctx context.Context, ex *Exchange) error
}

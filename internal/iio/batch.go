package iio

import (
	"context"

	"go.uber.org/multierr"
)

type pendingWrite struct {
	set   AttrSet
	name  string
	value any
}

// Batch collects attribute writes and applies them in order. Apply does not
// stop at the first failure; every error is returned combined.
type Batch struct {
	writes []pendingWrite
}

// Set queues a write of value to attribute name of set.
func (b *Batch) Set(set AttrSet, name string, value any) *Batch {
	b.writes = append(b.writes, pendingWrite{set: set, name: name, value: value})
	return b
}

// Len returns the number of queued writes.
func (b *Batch) Len() int { return len(b.writes) }

// Apply performs the queued writes and clears the batch.
func (b *Batch) Apply(ctx context.Context) error {
	var err error
	for _, w := range b.writes {
		if cerr := ctx.Err(); cerr != nil {
			err = multierr.Append(err, cerr)
			break
		}
		err = multierr.Append(err, w.set.SetAttrValue(ctx, w.name, w.value))
	}
	b.writes = nil
	return err
}

package eventstore

import "context"

// Journal appends typed events to a store and keeps an optional projection
// current. A nil Journal discards events.
type Journal struct {
	store      Store
	projection *RunHistoryProjection
}

// NewJournal returns a journal writing to store. projection may be nil.
func NewJournal(store Store, projection *RunHistoryProjection) *Journal {
	return &Journal{store: store, projection: projection}
}

// Record persists ev, then applies it to the projection.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if j == nil || j.store == nil {
		return nil
	}
	if err := j.store.Append(ctx, ev.RunID(), ev.Type(), ev.Payload(), ev.Metadata()); err != nil {
		return err
	}
	if j.projection != nil {
		j.projection.Apply(ev)
	}
	return nil
}

// Projection returns the projection kept by the journal, or nil.
func (j *Journal) Projection() *RunHistoryProjection {
	if j == nil {
		return nil
	}
	return j.projection
}

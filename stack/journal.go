package stack

import (
	"fmt"
	"slices"

	"github.com/rahulwagh/aistack/fetcher"
)

// PersistFunc saves the full list of a stack's resources after every change.
type PersistFunc func([]fetcher.StandardizedResource) error

// Journal is the ordered record of what exists for a stack. Entries are kept in
// creation order; undo walks them backwards.
type Journal struct {
	resources []fetcher.StandardizedResource
	persist   PersistFunc
}

// NewJournal starts a journal from already recorded resources.
func NewJournal(existing []fetcher.StandardizedResource, persist PersistFunc) *Journal {
	return &Journal{
		resources: slices.Clone(existing),
		persist:   persist,
	}
}

// Record appends r and persists. r stays in the journal even if persisting
// fails, so a rollback still sees it.
func (j *Journal) Record(r fetcher.StandardizedResource) error {
	j.resources = append(j.resources, r)
	return j.save()
}

// Forget removes r and persists.
func (j *Journal) Forget(r fetcher.StandardizedResource) error {
	j.resources = slices.DeleteFunc(j.resources, func(x fetcher.StandardizedResource) bool {
		return x.SameAs(r)
	})
	return j.save()
}

// Resources returns a copy of the entries in creation order.
func (j *Journal) Resources() []fetcher.StandardizedResource {
	return slices.Clone(j.resources)
}

// Newest returns the entries newest first.
func (j *Journal) Newest() []fetcher.StandardizedResource {
	out := slices.Clone(j.resources)
	slices.Reverse(out)
	return out
}

// OfKind returns the entries of one kind, newest first.
func (j *Journal) OfKind(kind string) []fetcher.StandardizedResource {
	var out []fetcher.StandardizedResource
	for _, r := range j.Newest() {
		if r.Service == kind {
			out = append(out, r)
		}
	}
	return out
}

// Len is the number of recorded entries.
func (j *Journal) Len() int {
	return len(j.resources)
}

func (j *Journal) save() error {
	if j.persist == nil {
		return nil
	}
	if err := j.persist(j.Resources()); err != nil {
		return fmt.Errorf("failed to persist stack state: %w", err)
	}
	return nil
}

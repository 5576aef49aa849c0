// Package builder edits a data view definition step by step. Each edit is
// applied to the held definition and then written through to the store as a
// full replace.
package builder

import (
	"context"
	"fmt"
	"slices"

	"github.com/matst80/dataview-sample/pkg/resolver"
	"github.com/matst80/dataview-sample/pkg/types"
)

// Builder is not safe for concurrent use; every edit assumes the previous one
// was committed.
type Builder struct {
	store     types.DataViewStore
	namespace string
	view      *types.DataView
}

func New(store types.DataViewStore, namespace string, view *types.DataView) *Builder {
	return &Builder{
		store:     store,
		namespace: namespace,
		view:      view,
	}
}

// View returns the held definition. It is mutated by later edits.
func (b *Builder) View() *types.DataView {
	return b.view
}

func (b *Builder) Namespace() string {
	return b.namespace
}

// Create posts the held definition as a new view.
func (b *Builder) Create(ctx context.Context) error {
	if err := b.store.CreateView(ctx, b.namespace, b.view); err != nil {
		return fmt.Errorf("create data view %s: %w", b.view.Id, err)
	}
	return nil
}

// Refresh replaces the held definition with the stored one.
func (b *Builder) Refresh(ctx context.Context) error {
	view, err := b.store.GetView(ctx, b.namespace, b.view.Id)
	if err != nil {
		return fmt.Errorf("get data view %s: %w", b.view.Id, err)
	}
	b.view = view
	return nil
}

func (b *Builder) put(ctx context.Context, op string) error {
	if err := b.store.PutView(ctx, b.namespace, b.view); err != nil {
		return fmt.Errorf("%s: put data view %s: %w", op, b.view.Id, err)
	}
	return nil
}

// AddQuery appends a query. Duplicate ids are not checked here.
func (b *Builder) AddQuery(ctx context.Context, queryID, pattern string) error {
	b.view.Queries = append(b.view.Queries, types.Query{
		Id:    queryID,
		Value: pattern,
		Kind:  types.QueryKindStream,
	})
	return b.put(ctx, "add query")
}

// IncludeFieldSets replaces the data field sets wholesale.
func (b *Builder) IncludeFieldSets(ctx context.Context, fieldSets []types.FieldSet) error {
	sets := make([]types.FieldSet, len(fieldSets))
	for i, fs := range fieldSets {
		sets[i] = fs.Clone()
	}
	b.view.DataFieldSets = sets
	return b.put(ctx, "include field sets")
}

func (b *Builder) GroupBy(ctx context.Context, field types.Field) error {
	b.view.GroupingFields = append(b.view.GroupingFields, field.Clone())
	return b.put(ctx, "group by")
}

// Identify moves the last grouping field to the identifying field of the
// field set for queryID.
func (b *Builder) Identify(ctx context.Context, queryID string) error {
	if len(b.view.GroupingFields) == 0 {
		return types.PreconditionError{Op: "identify", Reason: "no grouping fields"}
	}
	fs, err := b.fieldSet("identify", queryID)
	if err != nil {
		return err
	}
	last := len(b.view.GroupingFields) - 1
	identify := b.view.GroupingFields[last]
	b.view.GroupingFields = b.view.GroupingFields[:last]
	fs.IdentifyingField = &identify
	return b.put(ctx, "identify")
}

func (b *Builder) fieldSet(op, queryID string) (*types.FieldSet, error) {
	fs, ok := resolver.FindFieldSetByQuery(b.view.DataFieldSets, queryID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, types.NotFoundError{Kind: "FieldSet", ID: queryID})
	}
	return fs, nil
}

// Consolidate folds the field matching sourceKey into the field matching
// targetKey: the target gains the source keys and the source is removed.
func (b *Builder) Consolidate(ctx context.Context, queryID, targetKey, sourceKey string) error {
	fs, err := b.fieldSet("consolidate", queryID)
	if err != nil {
		return err
	}
	ti := resolver.IndexOfFieldByKey(fs.DataFields, types.FieldSourcePropertyId, targetKey)
	if ti < 0 {
		return fmt.Errorf("consolidate: %w", types.NotFoundError{Kind: "Field", ID: targetKey})
	}
	si := resolver.IndexOfFieldByKey(fs.DataFields, types.FieldSourcePropertyId, sourceKey)
	if si < 0 {
		return fmt.Errorf("consolidate: %w", types.NotFoundError{Kind: "Field", ID: sourceKey})
	}
	if ti == si {
		return types.PreconditionError{
			Op:     "consolidate",
			Reason: fmt.Sprintf("%q and %q resolve to the same field", targetKey, sourceKey),
		}
	}
	target := &fs.DataFields[ti]
	for _, k := range fs.DataFields[si].Keys {
		if !target.HasKey(k) {
			target.Keys = append(target.Keys, k)
		}
	}
	fs.DataFields = slices.Delete(fs.DataFields, si, si+1)
	return b.put(ctx, "consolidate")
}

// AddUomColumn turns on the unit of measure column for every listed field.
// All keys are resolved before anything is changed.
func (b *Builder) AddUomColumn(ctx context.Context, queryID string, keys ...string) error {
	fs, err := b.fieldSet("add uom column", queryID)
	if err != nil {
		return err
	}
	found := make([]*types.Field, 0, len(keys))
	for _, key := range keys {
		f, ok := resolver.FindFieldByKey(fs.DataFields, types.FieldSourcePropertyId, key)
		if !ok {
			return fmt.Errorf("add uom column: %w", types.NotFoundError{Kind: "Field", ID: key})
		}
		found = append(found, f)
	}
	for _, f := range found {
		f.IncludeUom = true
	}
	return b.put(ctx, "add uom column")
}

// AddSummaryColumns appends one independent copy of the base field per
// requested summary.
func (b *Builder) AddSummaryColumns(ctx context.Context, queryID, baseKey string, summaries ...types.Summary) error {
	fs, err := b.fieldSet("add summary columns", queryID)
	if err != nil {
		return err
	}
	base, ok := resolver.FindFieldByKey(fs.DataFields, types.FieldSourcePropertyId, baseKey)
	if !ok {
		return fmt.Errorf("add summary columns: %w", types.NotFoundError{Kind: "Field", ID: baseKey})
	}
	added := make([]types.Field, 0, len(summaries))
	for _, s := range summaries {
		f := base.Clone()
		f.SummaryDirection = s.Direction
		f.SummaryType = s.Type
		added = append(added, f)
	}
	// base points into DataFields, append only after the copies are taken
	fs.DataFields = append(fs.DataFields, added...)
	return b.put(ctx, "add summary columns")
}

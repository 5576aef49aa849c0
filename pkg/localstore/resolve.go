package localstore

import (
	"context"
	"path"
	"sort"

	"github.com/matst80/dataview-sample/pkg/types"
)

const defaultFieldLabel = "{IdentifyingValue} {FirstKey}"

// member is one resolved stream of one query.
type member struct {
	item    types.DataItem
	stream  *types.SdsStream
	sdsType *types.SdsType
}

func queryMatches(q types.Query, stream *types.SdsStream) bool {
	pattern := lower(q.Value)
	if pattern == "" {
		return false
	}
	if ok, _ := path.Match(pattern, lower(stream.Id)); ok {
		return true
	}
	ok, _ := path.Match(pattern, lower(stream.Name))
	return ok
}

func isEligible(t *types.SdsType) bool {
	if t == nil {
		return false
	}
	keys := t.KeyProperties()
	return len(keys) == 1 && keys[0].SdsType != nil && keys[0].SdsType.SdsTypeCode == types.SdsTypeCodeDateTime
}

func dataItem(stream *types.SdsStream, t *types.SdsType) types.DataItem {
	item := types.DataItem{
		Id:             stream.Id,
		Name:           stream.Name,
		TypeId:         stream.TypeId,
		ResourceType:   "Stream",
		Description:    stream.Description,
		DataItemFields: []types.DataItemField{},
	}
	if t == nil {
		return item
	}
	for _, p := range t.Properties {
		code := types.SdsTypeCodeEmpty
		if p.SdsType != nil {
			code = p.SdsType.SdsTypeCode
		}
		item.DataItemFields = append(item.DataItemFields, types.DataItemField{
			Id:       p.Id,
			Name:     p.Name,
			TypeCode: code,
			IsKey:    p.IsKey,
			Uom:      p.Uom,
		})
	}
	return item
}

// resolve splits the streams a query matches into eligible and ineligible
// members, ordered by stream id. Callers hold the lock.
func resolve(snap *Snapshot, q types.Query) (eligible, ineligible []member) {
	ids := make([]string, 0, len(snap.Streams))
	for id := range snap.Streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		stream := snap.Streams[id]
		if !queryMatches(q, stream) {
			continue
		}
		t := snap.Types[stream.TypeId]
		m := member{item: dataItem(stream, t), stream: stream, sdsType: t}
		if isEligible(t) {
			eligible = append(eligible, m)
		} else {
			ineligible = append(ineligible, m)
		}
	}
	return eligible, ineligible
}

func items(members []member) []types.DataItem {
	out := make([]types.DataItem, len(members))
	for i, m := range members {
		out[i] = m.item
	}
	return out
}

func (s *Store) resolveQuery(namespace, viewID, queryID string) ([]member, []member, error) {
	view, err := s.view(namespace, viewID)
	if err != nil {
		return nil, nil, err
	}
	q, ok := view.Query(queryID)
	if !ok {
		return nil, nil, types.NotFoundError{Kind: "Query", ID: queryID}
	}
	eligible, ineligible := resolve(s.namespaces[namespace], *q)
	return eligible, ineligible, nil
}

func (s *Store) ResolveDataItems(ctx context.Context, namespace, viewID, queryID string) (*types.ResolvedItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eligible, _, err := s.resolveQuery(namespace, viewID, queryID)
	if err != nil {
		return nil, err
	}
	return &types.ResolvedItems{TimeOfResolution: s.now().UTC(), Items: items(eligible)}, nil
}

func (s *Store) ResolveIneligibleDataItems(ctx context.Context, namespace, viewID, queryID string) (*types.ResolvedItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ineligible, err := s.resolveQuery(namespace, viewID, queryID)
	if err != nil {
		return nil, err
	}
	return &types.ResolvedItems{TimeOfResolution: s.now().UTC(), Items: items(ineligible)}, nil
}

// candidateFields lists every field a query's items offer: Id, Name and one
// field per non-key property in first-seen order.
func candidateFields(members []member) []types.Field {
	fields := []types.Field{
		{Source: types.FieldSourceId, Keys: []string{}, Label: "{IdentifyingValue} Id"},
		{Source: types.FieldSourceName, Keys: []string{}, Label: "{IdentifyingValue} Name"},
	}
	seen := make(map[string]struct{})
	for _, m := range members {
		for _, p := range m.sdsType.Properties {
			if p.IsKey {
				continue
			}
			if _, ok := seen[p.Id]; ok {
				continue
			}
			seen[p.Id] = struct{}{}
			fields = append(fields, types.Field{
				Source: types.FieldSourcePropertyId,
				Keys:   []string{p.Id},
				Label:  defaultFieldLabel,
			})
		}
	}
	return fields
}

// ResolveAvailableFieldSets returns, per query, the fields not yet included
// in the view.
func (s *Store) ResolveAvailableFieldSets(ctx context.Context, namespace, viewID string) (*types.ResolvedFieldSets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, err := s.view(namespace, viewID)
	if err != nil {
		return nil, err
	}
	snap := s.namespaces[namespace]
	out := &types.ResolvedFieldSets{TimeOfResolution: s.now().UTC(), Items: []types.FieldSet{}}
	for _, q := range view.Queries {
		eligible, _ := resolve(snap, q)
		if len(eligible) == 0 {
			continue
		}
		var included []types.Field
		for _, fs := range view.DataFieldSets {
			if fs.QueryId == q.Id {
				included = append(included, fs.DataFields...)
			}
		}
		available := make([]types.Field, 0)
		for _, f := range candidateFields(eligible) {
			taken := false
			for i := range included {
				if f.SameSlot(&included[i]) {
					taken = true
					break
				}
			}
			if !taken {
				available = append(available, f)
			}
		}
		if len(available) > 0 {
			out.Items = append(out.Items, types.FieldSet{QueryId: q.Id, DataFields: available})
		}
	}
	return out, nil
}

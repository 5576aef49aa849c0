// Package localstore is an in-process data view service. It keeps types,
// streams, values and views per namespace in memory, resolves view queries
// and produces interpolated tables the way the hosted service does for the
// features the tutorial touches.
package localstore

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
)

type Record struct {
	Index  time.Time      `json:"index"`
	Values map[string]any `json:"values"`
}

// Snapshot is the full state of one namespace.
type Snapshot struct {
	Types   map[string]*types.SdsType   `json:"types"`
	Streams map[string]*types.SdsStream `json:"streams"`
	Values  map[string][]Record         `json:"values"`
	Views   map[string]*types.DataView  `json:"views"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Types:   make(map[string]*types.SdsType),
		Streams: make(map[string]*types.SdsStream),
		Values:  make(map[string][]Record),
		Views:   make(map[string]*types.DataView),
	}
}

// ChangeHook is called after a namespace was mutated, outside the read/write
// lock but before the next mutation starts.
type ChangeHook func(namespace string) error

type Store struct {
	// writeMu serializes mutations together with their change hook.
	writeMu    sync.Mutex
	mu         sync.RWMutex
	namespaces map[string]*Snapshot
	now        func() time.Time
	onChange   ChangeHook
}

func NewStore() *Store {
	return &Store{
		namespaces: make(map[string]*Snapshot),
		now:        time.Now,
	}
}

var _ types.RemoteStore = (*Store)(nil)

func (s *Store) changed(namespace string) error {
	if s.onChange == nil {
		return nil
	}
	if err := s.onChange(namespace); err != nil {
		return types.RemoteStoreError{Op: "persist", StatusCode: http.StatusInternalServerError, Message: err.Error()}
	}
	return nil
}

// ns returns the namespace, creating it when create is set. Callers hold the lock.
func (s *Store) ns(namespace string, create bool) *Snapshot {
	snap, ok := s.namespaces[namespace]
	if !ok && create {
		snap = newSnapshot()
		s.namespaces[namespace] = snap
	}
	return snap
}

func clone[T any](v *T) *T {
	data, err := jsoncompat.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("clone %T: %v", v, err))
	}
	out := new(T)
	if err := jsoncompat.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("clone %T: %v", v, err))
	}
	return out
}

func badRequest(op, format string, args ...any) error {
	return types.RemoteStoreError{Op: op, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func conflict(op, format string, args ...any) error {
	return types.RemoteStoreError{Op: op, StatusCode: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

func (s *Store) CreateType(ctx context.Context, namespace string, t *types.SdsType) (*types.SdsType, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if t == nil || t.Id == "" {
		return nil, badRequest("create type", "type id is required")
	}
	s.mu.Lock()
	snap := s.ns(namespace, true)
	if existing, ok := snap.Types[t.Id]; ok {
		s.mu.Unlock()
		return clone(existing), nil
	}
	stored := clone(t)
	snap.Types[t.Id] = stored
	s.mu.Unlock()
	if err := s.changed(namespace); err != nil {
		return nil, err
	}
	return clone(stored), nil
}

func (s *Store) GetType(ctx context.Context, namespace, typeID string) (*types.SdsType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.ns(namespace, false)
	if snap == nil || snap.Types[typeID] == nil {
		return nil, types.NotFoundError{Kind: "Type", ID: typeID}
	}
	return clone(snap.Types[typeID]), nil
}

func (s *Store) DeleteType(ctx context.Context, namespace, typeID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	snap := s.ns(namespace, false)
	if snap == nil || snap.Types[typeID] == nil {
		s.mu.Unlock()
		return types.NotFoundError{Kind: "Type", ID: typeID}
	}
	for _, stream := range snap.Streams {
		if stream.TypeId == typeID {
			s.mu.Unlock()
			return conflict("delete type", "type %s is used by stream %s", typeID, stream.Id)
		}
	}
	delete(snap.Types, typeID)
	s.mu.Unlock()
	return s.changed(namespace)
}

func (s *Store) CreateOrUpdateStream(ctx context.Context, namespace string, stream *types.SdsStream) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if stream == nil || stream.Id == "" {
		return badRequest("create stream", "stream id is required")
	}
	s.mu.Lock()
	snap := s.ns(namespace, true)
	if snap.Types[stream.TypeId] == nil {
		s.mu.Unlock()
		return types.NotFoundError{Kind: "Type", ID: stream.TypeId}
	}
	if existing, ok := snap.Streams[stream.Id]; ok && existing.TypeId != stream.TypeId && len(snap.Values[stream.Id]) > 0 {
		s.mu.Unlock()
		return conflict("update stream", "stream %s has data, type cannot change", stream.Id)
	}
	snap.Streams[stream.Id] = clone(stream)
	s.mu.Unlock()
	return s.changed(namespace)
}

func (s *Store) GetStream(ctx context.Context, namespace, streamID string) (*types.SdsStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.ns(namespace, false)
	if snap == nil || snap.Streams[streamID] == nil {
		return nil, types.NotFoundError{Kind: "Stream", ID: streamID}
	}
	return clone(snap.Streams[streamID]), nil
}

// InsertValues upserts records by index.
func (s *Store) InsertValues(ctx context.Context, namespace, streamID string, values []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var records []map[string]any
	if err := jsoncompat.Unmarshal(values, &records); err != nil {
		return badRequest("insert values", "values must be a JSON array of objects: %v", err)
	}
	s.mu.Lock()
	snap := s.ns(namespace, false)
	if snap == nil || snap.Streams[streamID] == nil {
		s.mu.Unlock()
		return types.NotFoundError{Kind: "Stream", ID: streamID}
	}
	sdsType := snap.Types[snap.Streams[streamID].TypeId]
	keys := sdsType.KeyProperties()
	if len(keys) != 1 {
		s.mu.Unlock()
		return badRequest("insert values", "type %s must have exactly one key property", sdsType.Id)
	}
	key := keys[0].Id
	parsed := make([]Record, 0, len(records))
	for i, rec := range records {
		raw, ok := rec[key].(string)
		if !ok {
			s.mu.Unlock()
			return badRequest("insert values", "record %d is missing index %q", i, key)
		}
		idx, err := types.ParseIndex(raw)
		if err != nil {
			s.mu.Unlock()
			return badRequest("insert values", "record %d: %v", i, err)
		}
		vals := make(map[string]any, len(rec))
		for k, v := range rec {
			if k != key {
				vals[k] = v
			}
		}
		parsed = append(parsed, Record{Index: idx, Values: vals})
	}
	snap.Values[streamID] = mergeRecords(snap.Values[streamID], parsed)
	s.mu.Unlock()
	return s.changed(namespace)
}

func mergeRecords(existing, added []Record) []Record {
	byIndex := make(map[int64]Record, len(existing)+len(added))
	for _, r := range existing {
		byIndex[r.Index.UnixNano()] = r
	}
	for _, r := range added {
		byIndex[r.Index.UnixNano()] = r
	}
	merged := make([]Record, 0, len(byIndex))
	for _, r := range byIndex {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index.Before(merged[j].Index) })
	return merged
}

func (s *Store) DeleteStream(ctx context.Context, namespace, streamID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	snap := s.ns(namespace, false)
	if snap == nil || snap.Streams[streamID] == nil {
		s.mu.Unlock()
		return types.NotFoundError{Kind: "Stream", ID: streamID}
	}
	delete(snap.Streams, streamID)
	delete(snap.Values, streamID)
	s.mu.Unlock()
	return s.changed(namespace)
}

func validateView(op string, view *types.DataView) error {
	if view == nil || view.Id == "" {
		return badRequest(op, "data view id is required")
	}
	queries := make(map[string]struct{}, len(view.Queries))
	for _, q := range view.Queries {
		if q.Id == "" {
			return badRequest(op, "query id is required")
		}
		if _, dup := queries[q.Id]; dup {
			return badRequest(op, "duplicate query id %s", q.Id)
		}
		queries[q.Id] = struct{}{}
	}
	for _, fs := range view.DataFieldSets {
		if _, ok := queries[fs.QueryId]; !ok {
			return badRequest(op, "field set references unknown query %s", fs.QueryId)
		}
		for i := range fs.DataFields {
			for j := i + 1; j < len(fs.DataFields); j++ {
				if fs.DataFields[i].Identical(&fs.DataFields[j]) {
					return badRequest(op, "field set %s has duplicate field %s %v", fs.QueryId, fs.DataFields[i].Source, fs.DataFields[i].Keys)
				}
			}
		}
	}
	return nil
}

func (s *Store) CreateView(ctx context.Context, namespace string, view *types.DataView) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := validateView("create data view", view); err != nil {
		return err
	}
	s.mu.Lock()
	snap := s.ns(namespace, true)
	if _, ok := snap.Views[view.Id]; ok {
		s.mu.Unlock()
		return conflict("create data view", "data view %s already exists", view.Id)
	}
	snap.Views[view.Id] = normalizeView(view.Clone())
	s.mu.Unlock()
	return s.changed(namespace)
}

func normalizeView(v *types.DataView) *types.DataView {
	if v.IndexField.Label == "" {
		v.IndexField.Label = types.DefaultIndexLabel
	}
	if v.IndexTypeCode == "" {
		v.IndexTypeCode = "DateTime"
	}
	if v.Shape == "" {
		v.Shape = "Standard"
	}
	for i := range v.Queries {
		if v.Queries[i].Kind == "" {
			v.Queries[i].Kind = types.QueryKindStream
		}
	}
	return v
}

func (s *Store) GetView(ctx context.Context, namespace, viewID string) (*types.DataView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, err := s.view(namespace, viewID)
	if err != nil {
		return nil, err
	}
	return view.Clone(), nil
}

// view looks a view up. Callers hold the lock.
func (s *Store) view(namespace, viewID string) (*types.DataView, error) {
	snap := s.ns(namespace, false)
	if snap == nil || snap.Views[viewID] == nil {
		return nil, types.NotFoundError{Kind: "DataView", ID: viewID}
	}
	return snap.Views[viewID], nil
}

func (s *Store) PutView(ctx context.Context, namespace string, view *types.DataView) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := validateView("put data view", view); err != nil {
		return err
	}
	s.mu.Lock()
	snap := s.ns(namespace, true)
	snap.Views[view.Id] = normalizeView(view.Clone())
	s.mu.Unlock()
	return s.changed(namespace)
}

func (s *Store) DeleteView(ctx context.Context, namespace, viewID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if _, err := s.view(namespace, viewID); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.namespaces[namespace].Views, viewID)
	s.mu.Unlock()
	return s.changed(namespace)
}

// ExportNamespace returns a deep copy of a namespace, nil when it is unknown.
func (s *Store) ExportNamespace(namespace string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.ns(namespace, false)
	if snap == nil {
		return nil
	}
	return clone(snap)
}

func (s *Store) ImportNamespace(namespace string, snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == nil {
		delete(s.namespaces, namespace)
		return
	}
	restored := clone(snap)
	if restored.Types == nil {
		restored.Types = make(map[string]*types.SdsType)
	}
	if restored.Streams == nil {
		restored.Streams = make(map[string]*types.SdsStream)
	}
	if restored.Values == nil {
		restored.Values = make(map[string][]Record)
	}
	if restored.Views == nil {
		restored.Views = make(map[string]*types.DataView)
	}
	s.namespaces[namespace] = restored
}

func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsEmpty reports whether a namespace holds no types, streams or views.
func (s *Store) IsEmpty(namespace string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.ns(namespace, false)
	return snap == nil || len(snap.Types)+len(snap.Streams)+len(snap.Views) == 0
}

func lower(s string) string {
	return strings.ToLower(s)
}

package localstore

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/matst80/dataview-sample/pkg/types"
)

// MaxGridPoints bounds the number of index points of one request.
const MaxGridPoints = 100_000

type point struct {
	at    time.Time
	value any
}

// groupMember is a resolved stream together with the field set that selected it.
type groupMember struct {
	member
	fieldSet *types.FieldSet
	values   []Record
}

type group struct {
	key     []string
	members []groupMember
}

func grid(start, end time.Time, interval time.Duration) []time.Time {
	points := make([]time.Time, 0)
	for t := start; !t.After(end); t = t.Add(interval) {
		points = append(points, t)
	}
	return points
}

// fieldValue is the constant value a field has for an item, used for grouping
// and identification.
func fieldValue(f *types.Field, m *member) string {
	if m == nil {
		return ""
	}
	switch f.Source {
	case types.FieldSourceId:
		return m.item.Id
	case types.FieldSourceName:
		return m.item.Name
	}
	return ""
}

// needsDirection reports whether another summary of the same type and key
// slot but the opposite direction shares the field set.
func needsDirection(fs *types.FieldSet, f *types.Field) bool {
	if !f.IsSummary() {
		return false
	}
	for i := range fs.DataFields {
		o := &fs.DataFields[i]
		if o != f && o.Source == f.Source && slices.Equal(o.Keys, f.Keys) &&
			o.SummaryType == f.SummaryType && o.SummaryDirection != f.SummaryDirection {
			return true
		}
	}
	return false
}

func renderLabel(f *types.Field, m *member, identifying *types.Field, withDirection bool) string {
	label := f.Label
	if label == "" {
		label = defaultFieldLabel
	}
	if f.IsSummary() && !strings.Contains(label, "{SummaryType}") {
		label += " {SummaryType}"
	}
	if withDirection && !strings.Contains(label, "{SummaryDirection}") {
		label += " {SummaryDirection}"
	}
	identity := ""
	if m != nil {
		identity = m.item.Id
		if identifying != nil {
			identity = fieldValue(identifying, m)
		}
	}
	firstKey := f.FirstKey()
	if firstKey == "" {
		firstKey = string(f.Source)
	}
	label = strings.NewReplacer(
		"{IdentifyingValue}", identity,
		"{DistinguisherValue}", identity,
		"{FirstKey}", firstKey,
		"{SummaryType}", string(f.SummaryType),
		"{SummaryDirection}", string(f.SummaryDirection),
	).Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

func groupingLabel(f *types.Field) string {
	label := f.Label
	if label == "" {
		label = string(f.Source)
	}
	label = strings.NewReplacer(
		"{IdentifyingValue}", "",
		"{DistinguisherValue}", "",
		"{FirstKey}", f.FirstKey(),
	).Replace(label)
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return string(f.Source)
	}
	return label
}

// property returns the first key of the field present on the item's type.
// A consolidated field carries several keys and resolves whichever exists.
func property(f *types.Field, m *member) (*types.SdsTypeProperty, bool) {
	for _, key := range f.Keys {
		for i := range m.sdsType.Properties {
			p := &m.sdsType.Properties[i]
			if p.IsKey {
				continue
			}
			if (f.Source == types.FieldSourcePropertyId && p.Id == key) ||
				(f.Source == types.FieldSourcePropertyName && p.Name == key) {
				return p, true
			}
		}
	}
	return nil, false
}

func series(records []Record, propertyID string) []point {
	points := make([]point, 0, len(records))
	for _, r := range records {
		if v, ok := r.Values[propertyID]; ok && v != nil {
			points = append(points, point{at: r.Index, value: v})
		}
	}
	return points
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// interpolate returns the value at t: exact, linear between numeric
// neighbours, the previous value for non-numeric data and nil outside the
// stored range.
func interpolate(points []point, t time.Time) any {
	i := sort.Search(len(points), func(i int) bool { return !points[i].at.Before(t) })
	if i < len(points) && points[i].at.Equal(t) {
		return points[i].value
	}
	if i == 0 || i == len(points) {
		return nil
	}
	prev, next := points[i-1], points[i]
	a, okA := toFloat(prev.value)
	b, okB := toFloat(next.value)
	if !okA || !okB {
		return prev.value
	}
	ratio := float64(t.Sub(prev.at)) / float64(next.at.Sub(prev.at))
	return a + (b-a)*ratio
}

func summarize(points []point, t time.Time, interval time.Duration, f *types.Field) any {
	var from, to time.Time
	backward := f.SummaryDirection == types.SummaryDirectionBackward
	if backward {
		from, to = t.Add(-interval), t
	} else {
		from, to = t, t.Add(interval)
	}
	values := make([]float64, 0)
	for _, p := range points {
		inside := !p.at.Before(from) && p.at.Before(to)
		if backward {
			inside = p.at.After(from) && !p.at.After(to)
		}
		if !inside {
			continue
		}
		if v, ok := toFloat(p.value); ok {
			values = append(values, v)
		}
	}
	if f.SummaryType == types.SummaryTypeCount {
		return len(values)
	}
	if len(values) == 0 {
		return nil
	}
	lo, hi, total := values[0], values[0], 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		total += v
	}
	mean := total / float64(len(values))
	switch f.SummaryType {
	case types.SummaryTypeMinimum:
		return lo
	case types.SummaryTypeMaximum:
		return hi
	case types.SummaryTypeRange:
		return hi - lo
	case types.SummaryTypeMean:
		return mean
	case types.SummaryTypeTotal:
		return total
	case types.SummaryTypeStandardDeviation:
		if len(values) < 2 {
			return 0.0
		}
		sq := 0.0
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		return math.Sqrt(sq / float64(len(values)-1))
	}
	return nil
}

// cell computes a data field's value and unit for one member at one index.
func cell(f *types.Field, gm *groupMember, t time.Time, interval time.Duration) (any, string) {
	switch f.Source {
	case types.FieldSourceId:
		return gm.item.Id, ""
	case types.FieldSourceName:
		return gm.item.Name, ""
	case types.FieldSourcePropertyId, types.FieldSourcePropertyName:
		p, ok := property(f, &gm.member)
		if !ok {
			return nil, ""
		}
		points := series(gm.values, p.Id)
		if f.IsSummary() {
			return summarize(points, t, interval, f), p.Uom
		}
		return interpolate(points, t), p.Uom
	}
	return nil, ""
}

func groupKey(key []string) string {
	return strings.Join(key, "\x1f")
}

// groups clusters every resolved member by its grouping field values. A view
// without grouping fields has exactly one group.
func groups(snap *Snapshot, view *types.DataView) []*group {
	byKey := make(map[string]*group)
	order := make([]string, 0)
	if len(view.GroupingFields) == 0 {
		byKey[""] = &group{}
		order = append(order, "")
	}
	for i := range view.DataFieldSets {
		fs := &view.DataFieldSets[i]
		q, ok := view.Query(fs.QueryId)
		if !ok {
			continue
		}
		eligible, _ := resolve(snap, *q)
		for _, m := range eligible {
			key := make([]string, len(view.GroupingFields))
			for j := range view.GroupingFields {
				key[j] = fieldValue(&view.GroupingFields[j], &m)
			}
			k := groupKey(key)
			g, ok := byKey[k]
			if !ok {
				g = &group{key: key}
				byKey[k] = g
				order = append(order, k)
			}
			g.members = append(g.members, groupMember{member: m, fieldSet: fs, values: snap.Values[m.stream.Id]})
		}
	}
	sort.Strings(order)
	out := make([]*group, len(order))
	for i, k := range order {
		out[i] = byKey[k]
	}
	return out
}

func (s *Store) GetInterpolatedData(ctx context.Context, namespace, viewID string, start, end time.Time, interval time.Duration) (types.Table, error) {
	if interval <= 0 {
		return nil, badRequest("get interpolated data", "interval must be positive")
	}
	if end.Before(start) {
		return nil, badRequest("get interpolated data", "end index is before start index")
	}
	if end.Sub(start)/interval >= MaxGridPoints {
		return nil, badRequest("get interpolated data", "request exceeds %d index points", MaxGridPoints)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, err := s.view(namespace, viewID)
	if err != nil {
		return nil, err
	}
	indexLabel := view.IndexField.Label
	if indexLabel == "" {
		indexLabel = types.DefaultIndexLabel
	}
	points := grid(start.UTC(), end.UTC(), interval)
	table := make(types.Table, 0, len(points))
	for _, g := range groups(s.namespaces[namespace], view) {
		for _, t := range points {
			row := types.Row{indexLabel: t.Format(time.RFC3339)}
			for i := range view.GroupingFields {
				row[groupingLabel(&view.GroupingFields[i])] = g.key[i]
			}
			for mi := range g.members {
				gm := &g.members[mi]
				for fi := range gm.fieldSet.DataFields {
					f := &gm.fieldSet.DataFields[fi]
					label := renderLabel(f, &gm.member, gm.fieldSet.IdentifyingField, needsDirection(gm.fieldSet, f))
					if _, dup := row[label]; dup {
						return nil, badRequest("get interpolated data", "column %q is produced by more than one field", label)
					}
					value, uom := cell(f, gm, t, interval)
					row[label] = value
					if f.IncludeUom {
						row[label+" Uom"] = uom
					}
				}
			}
			table = append(table, row)
		}
	}
	return table, nil
}

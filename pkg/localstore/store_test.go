package localstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/matst80/dataview-sample/pkg/provision"
	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "tests"

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T, store types.RemoteStore) *provision.Sample {
	t.Helper()
	sample := provision.NewSample(provision.DefaultSettings(), testNow, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, provision.Provision(context.Background(), store, testNamespace, sample))
	return sample
}

func viewWithQuery(t *testing.T, store types.RemoteStore) *types.DataView {
	t.Helper()
	view := types.NewDataView("dv", "dv name", "")
	view.Queries = []types.Query{{Id: "stream", Value: "dvTank*"}}
	require.NoError(t, store.CreateView(context.Background(), testNamespace, view))
	return view
}

// includeAll puts every available field set into the view.
func includeAll(t *testing.T, store types.RemoteStore, view *types.DataView) *types.DataView {
	t.Helper()
	ctx := context.Background()
	available, err := store.ResolveAvailableFieldSets(ctx, testNamespace, view.Id)
	require.NoError(t, err)
	view.DataFieldSets = available.Items
	require.NoError(t, store.PutView(ctx, testNamespace, view))
	return view
}

func sampleValue(sample *provision.Sample, streamID string, i int, key string) any {
	return sample.Values[streamID][i][key]
}

func TestResolveDataItems(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	ctx := context.Background()

	intKey := types.NewSdsType("intKey", types.SdsTypeCodeInt32)
	_, err := store.CreateType(ctx, testNamespace, types.NewSdsType("IntIndexed", types.SdsTypeCodeObject,
		types.SdsTypeProperty{Id: "n", IsKey: true, SdsType: intKey},
		types.SdsTypeProperty{Id: "pressure", SdsType: types.NewSdsType("doubleType", types.SdsTypeCodeDouble)},
	))
	require.NoError(t, err)
	require.NoError(t, store.CreateOrUpdateStream(ctx, testNamespace, &types.SdsStream{Id: "dvTankCount", TypeId: "IntIndexed"}))

	view := viewWithQuery(t, store)

	items, err := store.ResolveDataItems(ctx, testNamespace, view.Id, "stream")
	require.NoError(t, err)
	require.Len(t, items.Items, 2)
	assert.Equal(t, "dvTank100", items.Items[0].Id)
	assert.Equal(t, "dvTank2", items.Items[1].Id)
	assert.Equal(t, "Tank2", items.Items[1].Name)
	assert.Len(t, items.Items[1].DataItemFields, 3)

	ineligible, err := store.ResolveIneligibleDataItems(ctx, testNamespace, view.Id, "stream")
	require.NoError(t, err)
	require.Len(t, ineligible.Items, 1)
	assert.Equal(t, "dvTankCount", ineligible.Items[0].Id)

	_, err = store.ResolveDataItems(ctx, testNamespace, view.Id, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestQueryMatchesNameCaseInsensitive(t *testing.T) {
	stream := &types.SdsStream{Id: "dvTank2", Name: "Tank2"}
	assert.True(t, queryMatches(types.Query{Value: "tank*"}, stream))
	assert.True(t, queryMatches(types.Query{Value: "DVTANK2"}, stream))
	assert.False(t, queryMatches(types.Query{Value: "pump*"}, stream))
	assert.False(t, queryMatches(types.Query{Value: ""}, stream))
}

func TestAvailableFieldSetsShrinkAfterInclude(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	ctx := context.Background()
	view := viewWithQuery(t, store)

	available, err := store.ResolveAvailableFieldSets(ctx, testNamespace, view.Id)
	require.NoError(t, err)
	require.Len(t, available.Items, 1)
	fs := available.Items[0]
	assert.Equal(t, "stream", fs.QueryId)
	require.Len(t, fs.DataFields, 5)
	assert.Equal(t, types.FieldSourceId, fs.DataFields[0].Source)
	assert.Equal(t, types.FieldSourceName, fs.DataFields[1].Source)
	keys := []string{fs.DataFields[2].FirstKey(), fs.DataFields[3].FirstKey(), fs.DataFields[4].FirstKey()}
	assert.ElementsMatch(t, []string{"pressure", "temperature", "ambient_temp"}, keys)

	includeAll(t, store, view)
	available, err = store.ResolveAvailableFieldSets(ctx, testNamespace, view.Id)
	require.NoError(t, err)
	assert.Empty(t, available.Items)
}

func TestInterpolatedData(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	require.Len(t, table, 4)

	assert.Equal(t, sample.Start.Format(time.RFC3339), table[0][types.DefaultIndexLabel])
	assert.Nil(t, table[0]["dvTank2 pressure"])
	// start+20m is the tenth record
	assert.InDelta(t, sampleValue(sample, "dvTank2", 9, "pressure"), table[1]["dvTank2 pressure"], 1e-9)
	assert.InDelta(t, sampleValue(sample, "dvTank100", 9, "ambient_temp"), table[1]["dvTank100 ambient_temp"], 1e-9)
	assert.Nil(t, table[1]["dvTank2 ambient_temp"])
	assert.Equal(t, "dvTank2", table[1]["dvTank2 Id"])
	assert.Equal(t, "Tank100", table[1]["dvTank100 Name"])
}

func TestInterpolateBetweenRecords(t *testing.T) {
	points := []point{
		{at: testNow, value: 10.0},
		{at: testNow.Add(2 * time.Minute), value: 20.0},
	}
	assert.InDelta(t, 15.0, interpolate(points, testNow.Add(time.Minute)), 1e-9)
	assert.Nil(t, interpolate(points, testNow.Add(-time.Minute)))
	assert.Nil(t, interpolate(points, testNow.Add(3*time.Minute)))
	assert.Equal(t, "a", interpolate([]point{{at: testNow, value: "a"}, {at: testNow.Add(time.Minute), value: "b"}}, testNow.Add(30*time.Second)))
}

func TestGroupingSplitsRows(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	view.GroupingFields = []types.Field{{Source: types.FieldSourceId, Keys: []string{}, Label: "{DistinguisherValue} {FirstKey}"}}
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	require.Len(t, table, 8)
	assert.Equal(t, "dvTank100", table[0]["Id"])
	assert.Equal(t, "dvTank2", table[4]["Id"])
	assert.Contains(t, table[0], "dvTank100 pressure")
	assert.NotContains(t, table[0], "dvTank2 pressure")
}

func TestIdentifyingFieldRelabelsColumns(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	view.DataFieldSets[0].IdentifyingField = &types.Field{Source: types.FieldSourceName, Keys: []string{}}
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	require.Len(t, table, 4)
	assert.Contains(t, table[1], "Tank2 pressure")
	assert.NotContains(t, table[1], "dvTank2 pressure")
}

func TestConsolidatedFieldReadsEitherProperty(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	fields := view.DataFieldSets[0].DataFields
	kept := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		switch f.FirstKey() {
		case "ambient_temp":
			continue
		case "temperature":
			f.Keys = append(f.Keys, "ambient_temp")
		}
		kept = append(kept, f)
	}
	view.DataFieldSets[0].DataFields = kept
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, sampleValue(sample, "dvTank2", 9, "temperature"), table[1]["dvTank2 temperature"], 1e-9)
	assert.InDelta(t, sampleValue(sample, "dvTank100", 9, "ambient_temp"), table[1]["dvTank100 temperature"], 1e-9)
	assert.NotContains(t, table[1], "dvTank100 ambient_temp")
}

func TestUomAndSummaryColumns(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	fs := &view.DataFieldSets[0]
	var pressure types.Field
	for i := range fs.DataFields {
		if fs.DataFields[i].FirstKey() == "pressure" {
			fs.DataFields[i].IncludeUom = true
			pressure = fs.DataFields[i]
		}
	}
	mean := pressure.Clone()
	mean.SummaryType, mean.SummaryDirection = types.SummaryTypeMean, types.SummaryDirectionForward
	total := pressure.Clone()
	total.SummaryType, total.SummaryDirection = types.SummaryTypeTotal, types.SummaryDirectionForward
	fs.DataFields = append(fs.DataFields, mean, total)
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	row := table[1]
	assert.Equal(t, "bar", row["dvTank2 pressure Uom"])
	assert.Equal(t, "bar", row["dvTank2 pressure Mean Uom"])

	// forward window [start+20m, start+40m) holds records 10 to 19
	sum := 0.0
	for i := 9; i < 19; i++ {
		sum += sampleValue(sample, "dvTank2", i, "pressure").(float64)
	}
	assert.InDelta(t, sum, row["dvTank2 pressure Total"], 1e-9)
	assert.InDelta(t, sum/10, row["dvTank2 pressure Mean"], 1e-9)
}

func TestSummaryDirectionsKeepSeparateColumns(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	fs := &view.DataFieldSets[0]
	pressure, ok := findPressure(fs)
	require.True(t, ok)
	forward := pressure.Clone()
	forward.SummaryType, forward.SummaryDirection = types.SummaryTypeMean, types.SummaryDirectionForward
	backward := pressure.Clone()
	backward.SummaryType, backward.SummaryDirection = types.SummaryTypeMean, types.SummaryDirectionBackward
	fs.DataFields = append(fs.DataFields, forward, backward)
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	table, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	row := table[1]
	assert.NotContains(t, row, "dvTank2 pressure Mean")

	forwardSum, backwardSum := 0.0, 0.0
	for i := 0; i < 10; i++ {
		backwardSum += sampleValue(sample, "dvTank2", i, "pressure").(float64)
		forwardSum += sampleValue(sample, "dvTank2", i+9, "pressure").(float64)
	}
	assert.InDelta(t, forwardSum/10, row["dvTank2 pressure Mean Forward"], 1e-9)
	assert.InDelta(t, backwardSum/10, row["dvTank2 pressure Mean Backward"], 1e-9)
	assert.Contains(t, row, "dvTank100 pressure Mean Forward")
	assert.Contains(t, row, "dvTank100 pressure Mean Backward")
}

func TestCollidingColumnLabelsAreRejected(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))
	relabeled := 0
	for i := range view.DataFieldSets[0].DataFields {
		f := &view.DataFieldSets[0].DataFields[i]
		if f.Source == types.FieldSourcePropertyId && relabeled < 2 {
			f.Label = "{IdentifyingValue} reading"
			relabeled++
		}
	}
	require.Equal(t, 2, relabeled)
	require.NoError(t, store.PutView(ctx, testNamespace, view))

	_, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.ErrorContains(t, err, "reading")
}

func TestPutViewIsIdempotent(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	ctx := context.Background()
	view := includeAll(t, store, viewWithQuery(t, store))

	first, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	stored, err := store.GetView(ctx, testNamespace, view.Id)
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, store.PutView(ctx, testNamespace, view))
	}

	again, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	reread, err := store.GetView(ctx, testNamespace, view.Id)
	require.NoError(t, err)
	assert.Equal(t, stored, reread)
}

func findPressure(fs *types.FieldSet) (types.Field, bool) {
	for _, f := range fs.DataFields {
		if f.FirstKey() == "pressure" && !f.IsSummary() {
			return f, true
		}
	}
	return types.Field{}, false
}

func TestSummarizeBackwardAndCount(t *testing.T) {
	points := []point{
		{at: testNow, value: 1.0},
		{at: testNow.Add(time.Minute), value: 3.0},
		{at: testNow.Add(2 * time.Minute), value: 5.0},
	}
	backward := &types.Field{SummaryType: types.SummaryTypeRange, SummaryDirection: types.SummaryDirectionBackward}
	assert.InDelta(t, 2.0, summarize(points, testNow.Add(2*time.Minute), 2*time.Minute, backward), 1e-9)

	count := &types.Field{SummaryType: types.SummaryTypeCount, SummaryDirection: types.SummaryDirectionForward}
	assert.Equal(t, 2, summarize(points, testNow, 2*time.Minute, count))
	assert.Equal(t, 0, summarize(points, testNow.Add(time.Hour), time.Minute, count))

	std := &types.Field{SummaryType: types.SummaryTypeStandardDeviation, SummaryDirection: types.SummaryDirectionForward}
	assert.InDelta(t, 2.0, summarize(points, testNow, 3*time.Minute, std), 1e-9)
}

func statusOf(err error) int {
	var rse types.RemoteStoreError
	if errors.As(err, &rse) {
		return rse.StatusCode
	}
	return 0
}

func TestPutViewValidation(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	ctx := context.Background()
	view := viewWithQuery(t, store)

	assert.Equal(t, http.StatusConflict, statusOf(store.CreateView(ctx, testNamespace, view)))

	bad := view.Clone()
	bad.DataFieldSets = []types.FieldSet{{QueryId: "other", DataFields: []types.Field{}}}
	assert.Equal(t, http.StatusBadRequest, statusOf(store.PutView(ctx, testNamespace, bad)))

	dup := view.Clone()
	f := types.Field{Source: types.FieldSourcePropertyId, Keys: []string{"pressure"}}
	dup.DataFieldSets = []types.FieldSet{{QueryId: "stream", DataFields: []types.Field{f, f.Clone()}}}
	assert.Equal(t, http.StatusBadRequest, statusOf(store.PutView(ctx, testNamespace, dup)))

	summary := f.Clone()
	summary.SummaryType = types.SummaryTypeMean
	dup.DataFieldSets[0].DataFields[1] = summary
	assert.NoError(t, store.PutView(ctx, testNamespace, dup))
}

func TestInterpolatedDataRejectsBadWindow(t *testing.T) {
	store := NewStore()
	sample := seeded(t, store)
	view := viewWithQuery(t, store)
	ctx := context.Background()

	_, err := store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.Start, sample.End, 0)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	_, err = store.GetInterpolatedData(ctx, testNamespace, view.Id, sample.End, sample.Start, time.Minute)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	_, err = store.GetInterpolatedData(ctx, testNamespace, "missing", sample.Start, sample.End, time.Minute)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteLifecycle(t *testing.T) {
	store := NewStore()
	seeded(t, store)
	ctx := context.Background()
	view := viewWithQuery(t, store)

	require.NoError(t, store.DeleteView(ctx, testNamespace, view.Id))
	_, err := store.GetView(ctx, testNamespace, view.Id)
	var nf types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "DataView", nf.Kind)
	assert.ErrorIs(t, store.DeleteView(ctx, testNamespace, view.Id), types.ErrNotFound)

	assert.Equal(t, http.StatusConflict, statusOf(store.DeleteType(ctx, testNamespace, "Time_SampleType1")))
	require.NoError(t, store.DeleteStream(ctx, testNamespace, "dvTank2"))
	require.NoError(t, store.DeleteStream(ctx, testNamespace, "dvTank100"))
	require.NoError(t, store.DeleteType(ctx, testNamespace, "Time_SampleType1"))
	require.NoError(t, store.DeleteType(ctx, testNamespace, "Time_SampleType2"))
	assert.True(t, store.IsEmpty(testNamespace))
}

func TestCreateTypeReturnsExisting(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	first := types.NewSdsType("T", types.SdsTypeCodeObject)
	first.Description = "first"
	_, err := store.CreateType(ctx, testNamespace, first)
	require.NoError(t, err)

	second := types.NewSdsType("T", types.SdsTypeCodeObject)
	got, err := store.CreateType(ctx, testNamespace, second)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Description)
}

func TestSQLiteStoreReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dataview.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	sample := seeded(t, store)
	view := includeAll(t, store, viewWithQuery(t, store))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{testNamespace}, reopened.Namespaces())

	got, err := reopened.GetView(context.Background(), testNamespace, view.Id)
	require.NoError(t, err)
	assert.Equal(t, view.FieldCount(), got.FieldCount())

	table, err := reopened.GetInterpolatedData(context.Background(), testNamespace, view.Id, sample.Start, sample.End, 20*time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, sampleValue(sample, "dvTank2", 9, "pressure"), table[1]["dvTank2 pressure"], 1e-9)
}

func TestSQLiteStoreRollsBackUnpersistedChanges(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "dataview.db"))
	require.NoError(t, err)
	ctx := context.Background()
	sample := seeded(t, store)
	view := viewWithQuery(t, store)
	require.NoError(t, store.db.Close())

	_, err = store.CreateType(ctx, testNamespace, types.NewSdsType("late", types.SdsTypeCodeObject))
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))
	_, err = store.GetType(ctx, testNamespace, "late")
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = store.DeleteView(ctx, testNamespace, view.Id)
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))
	_, err = store.GetView(ctx, testNamespace, view.Id)
	assert.NoError(t, err)

	_, err = store.CreateType(ctx, "fresh", types.NewSdsType("late", types.SdsTypeCodeObject))
	assert.Error(t, err)
	assert.NotContains(t, store.Namespaces(), "fresh")
	_, err = store.GetStream(ctx, testNamespace, sample.Streams[0].Id)
	assert.NoError(t, err)
}

// Package provision generates the two sample streams a data view is built
// over, and writes them to a store.
package provision

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
)

type Settings struct {
	TypeId1       string
	TypeId2       string
	StreamId1     string
	StreamName1   string
	StreamId2     string
	StreamName2   string
	ConsolidateTo string
	Consolidate   string
	Records       int
	Spacing       time.Duration
	Window        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TypeId1:       "Time_SampleType1",
		TypeId2:       "Time_SampleType2",
		StreamId1:     "dvTank2",
		StreamName1:   "Tank2",
		StreamId2:     "dvTank100",
		StreamName2:   "Tank100",
		ConsolidateTo: "temperature",
		Consolidate:   "ambient_temp",
		Records:       29,
		Spacing:       2 * time.Minute,
		Window:        time.Hour,
	}
}

type Sample struct {
	Types   []*types.SdsType
	Streams []*types.SdsStream
	// Values holds one record slice per stream id.
	Values map[string][]map[string]any
	Start  time.Time
	End    time.Time
}

const timeProperty = "time"

// NewSample builds the sample types, streams and values ending at now.
func NewSample(s Settings, now time.Time, rnd *rand.Rand) *Sample {
	now = now.UTC().Truncate(time.Second)
	doubleType := types.NewSdsType("doubleType", types.SdsTypeCodeDouble)
	dateTimeType := types.NewSdsType("dateTimeType", types.SdsTypeCodeDateTime)

	pressure := types.SdsTypeProperty{Id: "pressure", Name: "pressure", SdsType: doubleType, Uom: "bar"}
	temperature := types.SdsTypeProperty{Id: s.ConsolidateTo, Name: s.ConsolidateTo, SdsType: doubleType, Uom: "degree Celsius"}
	ambient := types.SdsTypeProperty{Id: s.Consolidate, Name: s.Consolidate, SdsType: doubleType, Uom: "degree Celsius"}
	index := types.SdsTypeProperty{Id: timeProperty, Name: timeProperty, IsKey: true, SdsType: dateTimeType}

	type1 := types.NewSdsType(s.TypeId1, types.SdsTypeCodeObject, pressure, temperature, index)
	type1.Description = "This is a sample Sds type for storing Pressure type events for Data Views"
	type2 := types.NewSdsType(s.TypeId2, types.SdsTypeCodeObject, pressure, ambient, index)
	type2.Description = "This is a new sample Sds type for storing Pressure type events for Data Views"

	stream1 := &types.SdsStream{Id: s.StreamId1, Name: s.StreamName1, TypeId: s.TypeId1, Description: "A Stream to store the sample Pressure events"}
	stream2 := &types.SdsStream{Id: s.StreamId2, Name: s.StreamName2, TypeId: s.TypeId2, Description: "A Stream to store the sample Pressure events"}

	start := now.Add(-s.Window)
	values1 := make([]map[string]any, 0, s.Records)
	values2 := make([]map[string]any, 0, s.Records)
	for i := 1; i <= s.Records; i++ {
		ts := start.Add(time.Duration(i) * s.Spacing).Format(time.RFC3339)
		values1 = append(values1, map[string]any{
			timeProperty:    ts,
			"pressure":      uniform(rnd, 0, 100),
			s.ConsolidateTo: uniform(rnd, 50, 70),
		})
		values2 = append(values2, map[string]any{
			timeProperty:  ts,
			"pressure":    uniform(rnd, 0, 100),
			s.Consolidate: uniform(rnd, 50, 70),
		})
	}

	return &Sample{
		Types:   []*types.SdsType{type1, type2},
		Streams: []*types.SdsStream{stream1, stream2},
		Values: map[string][]map[string]any{
			stream1.Id: values1,
			stream2.Id: values2,
		},
		Start: start,
		End:   now,
	}
}

func uniform(rnd *rand.Rand, lo, hi float64) float64 {
	return lo + rnd.Float64()*(hi-lo)
}

type Store interface {
	types.TypeStore
	types.StreamStore
}

// Provision creates types, then streams, then sends values.
func Provision(ctx context.Context, store Store, namespace string, sample *Sample) error {
	log.Println("Creating SDS Types...")
	for _, t := range sample.Types {
		if _, err := store.CreateType(ctx, namespace, t); err != nil {
			return fmt.Errorf("create type %s: %w", t.Id, err)
		}
	}
	log.Println("Creating SDS Streams...")
	for _, s := range sample.Streams {
		if err := store.CreateOrUpdateStream(ctx, namespace, s); err != nil {
			return fmt.Errorf("create stream %s: %w", s.Id, err)
		}
	}
	log.Println("Sending values...")
	for _, s := range sample.Streams {
		payload, err := jsoncompat.Marshal(sample.Values[s.Id])
		if err != nil {
			return fmt.Errorf("encode values for %s: %w", s.Id, err)
		}
		if err := store.InsertValues(ctx, namespace, s.Id, payload); err != nil {
			return fmt.Errorf("insert values into %s: %w", s.Id, err)
		}
	}
	return nil
}

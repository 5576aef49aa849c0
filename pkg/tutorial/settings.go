package tutorial

import (
	"time"

	"github.com/matst80/dataview-sample/pkg/provision"
	"github.com/matst80/dataview-sample/pkg/types"
)

// Settings names every sample object and edit of a run.
type Settings struct {
	Sample provision.Settings

	ViewId          string
	ViewName        string
	ViewDescription string
	QueryId         string
	QueryValue      string
	Interval        time.Duration

	GroupingLabel   string
	ConsolidateTo   string
	ConsolidateFrom string
	UomKeys         []string
	SummaryKey      string
	Summaries       []types.Summary

	// MinRows is the smallest table a verification accepts.
	MinRows int
}

func DefaultSettings() Settings {
	sample := provision.DefaultSettings()
	return Settings{
		Sample:          sample,
		ViewId:          "DataView_Sample",
		ViewName:        "DataView_Sample_Name",
		ViewDescription: "A Sample Description that describes that this Data View is just used for our sample.",
		QueryId:         "stream",
		QueryValue:      "dvTank*",
		Interval:        20 * time.Minute,
		GroupingLabel:   "{DistinguisherValue} {FirstKey}",
		ConsolidateTo:   sample.ConsolidateTo,
		ConsolidateFrom: sample.Consolidate,
		UomKeys:         []string{"pressure", sample.ConsolidateTo},
		SummaryKey:      "pressure",
		Summaries: []types.Summary{
			{Direction: types.SummaryDirectionForward, Type: types.SummaryTypeMean},
			{Direction: types.SummaryDirectionForward, Type: types.SummaryTypeTotal},
		},
		MinRows: 1,
	}
}

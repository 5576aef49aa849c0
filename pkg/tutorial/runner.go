// Package tutorial walks a data view through every configuration step,
// printing the service's answers, and removes the sample objects afterwards.
package tutorial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/matst80/dataview-sample/pkg/builder"
	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/journal"
	"github.com/matst80/dataview-sample/pkg/provision"
	"github.com/matst80/dataview-sample/pkg/teardown"
	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/matst80/dataview-sample/pkg/verify"
)

// Authenticator describes the connection for step 1. The HTTP client
// implements it; an in-process store has nothing to show.
type Authenticator interface {
	Uri() string
	TokenInfo(ctx context.Context) (jwt.MapClaims, error)
}

type Runner struct {
	Store     types.RemoteStore
	Namespace string
	Settings  Settings
	Out       io.Writer
	Auth      Authenticator
	Journal   journal.Recorder
	Now       func() time.Time
	Rand      *rand.Rand
	RunId     string
}

func NewRunner(store types.RemoteStore, namespace string, out io.Writer) *Runner {
	return &Runner{
		Store:     store,
		Namespace: namespace,
		Settings:  DefaultSettings(),
		Out:       out,
		Now:       time.Now,
		RunId:     uuid.NewString(),
	}
}

const banner = `--------------------------------------------------------------------
 ######                      #    #                 ######  #     #
 #     #   ##   #####   ##   #    # # ###### #    # #     #  #   #
 #     #  #  #    #    #  #  #    # # #      #    # #     #   # #
 #     # #    #   #   #    # #    # # #####  #    # ######     #
 #     # ######   #   ###### #    # # #      # ## # #          #
 #     # #    #   #   #    #  #  #  # #      ##  ## #          #
 ######  #    #   #   #    #   ##   # ###### #    # #          #
--------------------------------------------------------------------`

// run holds the state shared between the steps of one Run.
type run struct {
	*Runner
	sample   *provision.Sample
	builder  *builder.Builder
	verifier *verify.Verifier
}

// Run executes steps 1 to 14. Teardown always runs once step 1 succeeded,
// and the first step failure is returned after it.
func (r *Runner) Run(ctx context.Context) error {
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Rand == nil {
		r.Rand = rand.New(rand.NewPCG(uint64(r.Now().UnixNano()), 0))
	}
	fmt.Fprintln(r.Out, banner)

	if err := r.authenticate(ctx); err != nil {
		return err
	}

	state := &run{
		Runner:   r,
		verifier: verify.NewVerifier(r.Store, r.Namespace),
	}
	state.verifier.Policy = verify.MinRows(max(r.Settings.MinRows, 1))

	err := state.steps(ctx)
	if err != nil {
		fmt.Fprintf(r.Out, "Encountered Error: %v\n\n", err)
	}
	err = state.cleanup(ctx, err)
	if err == nil {
		fmt.Fprintln(r.Out, "Complete!")
	}
	return err
}

func (r *Runner) step(n int, title string) {
	fmt.Fprintln(r.Out)
	fmt.Fprintf(r.Out, "Step %d: %s\n", n, title)
}

func (r *Runner) dump(v any) {
	data, err := jsoncompat.MarshalIndent(v)
	if err != nil {
		fmt.Fprintf(r.Out, "%v\n", v)
		return
	}
	fmt.Fprintln(r.Out, string(data))
}

// record writes a journal entry. Journal failures never fail a run.
func (r *Runner) record(ctx context.Context, entry journal.Entry) {
	if r.Journal == nil {
		return
	}
	entry.RunId = r.RunId
	entry.Namespace = r.Namespace
	entry.At = r.Now().UTC()
	if err := r.Journal.Record(ctx, entry); err != nil {
		log.Printf("journal: step %d not recorded: %v", entry.Step, err)
	}
}

func (r *Runner) authenticate(ctx context.Context) error {
	const title = "Authenticate against OCS"
	r.step(1, title)
	fmt.Fprintln(r.Out, r.Namespace)
	if r.Auth == nil {
		fmt.Fprintln(r.Out, "using in-process data view store")
		r.record(ctx, journal.Entry{Step: 1, Title: title})
		return nil
	}
	fmt.Fprintln(r.Out, r.Auth.Uri())
	claims, err := r.Auth.TokenInfo(ctx)
	if err != nil {
		r.record(ctx, journal.Entry{Step: 1, Title: title, Error: err.Error()})
		return fmt.Errorf("authenticate: %w", err)
	}
	log.Printf("token for %v, expires %v", claims["sub"], claims["exp"])
	r.record(ctx, journal.Entry{Step: 1, Title: title})
	return nil
}

func (s *run) window() verify.Window {
	return verify.Window{Start: s.sample.Start, End: s.sample.End, Interval: s.Settings.Interval}
}

// show prints the view data and checks it against the row policy.
func (s *run) show(ctx context.Context, n int, title string) error {
	fmt.Fprintln(s.Out, "Retrieving data from the data view:")
	table, err := s.verifier.Verify(ctx, s.Settings.ViewId, s.window())
	if table != nil {
		s.dump(table)
		fmt.Fprintln(s.Out, len(table))
	}
	entry := journal.Entry{Step: n, Title: title, ViewId: s.Settings.ViewId, View: s.builder.View(), Rows: len(table)}
	if err != nil {
		entry.Error = err.Error()
	}
	s.record(ctx, entry)
	return err
}

func (s *run) done(ctx context.Context, n int, title string) {
	entry := journal.Entry{Step: n, Title: title, ViewId: s.Settings.ViewId}
	if s.builder != nil {
		entry.View = s.builder.View()
	}
	s.record(ctx, entry)
}

func (s *run) steps(ctx context.Context) error {
	cfg := s.Settings
	ns := s.Namespace

	s.step(2, "Create types, streams, and data")
	s.sample = provision.NewSample(cfg.Sample, s.Now(), s.Rand)
	if err := provision.Provision(ctx, s.Store, ns, s.sample); err != nil {
		return err
	}
	s.done(ctx, 2, "Create types, streams, and data")

	s.step(3, "Create a data view")
	s.builder = builder.New(s.Store, ns, types.NewDataView(cfg.ViewId, cfg.ViewName, cfg.ViewDescription))
	if err := s.builder.Create(ctx); err != nil {
		return err
	}
	s.done(ctx, 3, "Create a data view")

	s.step(4, "Retrieve the data view")
	if err := s.builder.Refresh(ctx); err != nil {
		return err
	}
	s.dump(s.builder.View())
	s.done(ctx, 4, "Retrieve the data view")

	s.step(5, "Add a query for data items")
	if err := s.builder.AddQuery(ctx, cfg.QueryId, cfg.QueryValue); err != nil {
		return err
	}
	s.done(ctx, 5, "Add a query for data items")

	s.step(6, "View items found by the query")
	fmt.Fprintln(s.Out, "List data items found by the query:")
	items, err := s.Store.ResolveDataItems(ctx, ns, cfg.ViewId, cfg.QueryId)
	if err != nil {
		return err
	}
	s.dump(items)
	fmt.Fprintln(s.Out, "List ineligible data items found by the query:")
	ineligible, err := s.Store.ResolveIneligibleDataItems(ctx, ns, cfg.ViewId, cfg.QueryId)
	if err != nil {
		return err
	}
	s.dump(ineligible)
	s.done(ctx, 6, "View items found by the query")

	s.step(7, "View fields available to include in the data view")
	available, err := s.Store.ResolveAvailableFieldSets(ctx, ns, cfg.ViewId)
	if err != nil {
		return err
	}
	s.dump(available)
	s.done(ctx, 7, "View fields available to include in the data view")

	s.step(8, "Include some of the available fields")
	if err := s.builder.IncludeFieldSets(ctx, available.Items); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, "List available field sets:")
	remaining, err := s.Store.ResolveAvailableFieldSets(ctx, ns, cfg.ViewId)
	if err != nil {
		return err
	}
	s.dump(remaining)
	if err := s.show(ctx, 8, "Include some of the available fields"); err != nil {
		return err
	}

	s.step(9, "Group the data view")
	grouping := types.Field{Source: types.FieldSourceId, Keys: []string{}, Label: cfg.GroupingLabel}
	if err := s.builder.GroupBy(ctx, grouping); err != nil {
		return err
	}
	if err := s.show(ctx, 9, "Group the data view"); err != nil {
		return err
	}

	s.step(10, "Identify data items")
	if err := s.builder.Identify(ctx, cfg.QueryId); err != nil {
		return err
	}
	if err := s.show(ctx, 10, "Identify data items"); err != nil {
		return err
	}

	s.step(11, "Consolidate data fields")
	if err := s.builder.Consolidate(ctx, cfg.QueryId, cfg.ConsolidateTo, cfg.ConsolidateFrom); err != nil {
		return err
	}
	if err := s.show(ctx, 11, "Consolidate data fields"); err != nil {
		return err
	}

	s.step(12, "Add Units of Measure Column")
	if err := s.builder.AddUomColumn(ctx, cfg.QueryId, cfg.UomKeys...); err != nil {
		return err
	}
	if err := s.show(ctx, 12, "Add Units of Measure Column"); err != nil {
		return err
	}

	s.step(13, "Add Summaries Columns")
	if err := s.builder.AddSummaryColumns(ctx, cfg.QueryId, cfg.SummaryKey, cfg.Summaries...); err != nil {
		return err
	}
	return s.show(ctx, 13, "Add Summaries Columns")
}

// cleanup is step 14. It runs whatever happened before and keeps rootErr.
func (s *run) cleanup(ctx context.Context, rootErr error) error {
	const title = "Delete sample objects from OCS"
	s.step(14, title)
	cfg := s.Settings
	ns := s.Namespace

	seq := teardown.NewSequencer(
		teardown.DeleteView(s.Store, ns, cfg.ViewId),
		teardown.ViewDeleted(s.Store, ns, cfg.ViewId),
		teardown.DeleteStream(s.Store, ns, cfg.Sample.StreamId1),
		teardown.DeleteStream(s.Store, ns, cfg.Sample.StreamId2),
		teardown.DeleteType(s.Store, ns, cfg.Sample.TypeId1),
		teardown.DeleteType(s.Store, ns, cfg.Sample.TypeId2),
	)
	report, err := seq.Run(ctx, rootErr)
	for _, o := range report.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		fmt.Fprintf(s.Out, "%s: %s\n", o.Name, status)
	}
	entry := journal.Entry{Step: 14, Title: title, ViewId: cfg.ViewId}
	if err != nil {
		entry.Error = err.Error()
	}
	s.record(ctx, entry)

	var deleteFailed types.DeleteFailedError
	if errors.As(err, &deleteFailed) {
		fmt.Fprintln(s.Out, deleteFailed.Error())
	}
	return err
}

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shpitdev/email-finder/internal/progress"
	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/shpitdev/email-finder/internal/verify/candidates"
	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	hosts map[string][]string
	calls map[string]int
}

func (r *fakeResolver) Resolve(_ context.Context, domain string) []string {
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[domain]++
	return r.hosts[domain]
}

type fakeProber struct {
	accept map[string]bool
	probed []string
	onCall func(address string)
}

func (p *fakeProber) Probe(_ context.Context, address string, _ []string) verify.ProbeResult {
	p.probed = append(p.probed, address)
	if p.onCall != nil {
		p.onCall(address)
	}
	if p.accept[address] {
		return verify.ProbeResult{Address: address, Accepted: true, Reason: "accepted"}
	}
	return verify.ProbeResult{Address: address, Reason: "550 no such user"}
}

type fakeDetector struct {
	catchAll map[string]bool
	calls    int
}

func (d *fakeDetector) Detect(_ context.Context, domain string, _ []string) bool {
	d.calls++
	return d.catchAll[domain]
}

type fakeValidator struct {
	accept    map[string]bool
	validated []string
}

func (v *fakeValidator) Validate(_ context.Context, address string) verify.ValidationResult {
	v.validated = append(v.validated, address)
	if v.accept[address] {
		return verify.ValidationResult{Accepted: true, Verdict: "valid"}
	}
	return verify.ValidationResult{Verdict: "invalid", Reason: "validator: invalid"}
}

type memStore struct {
	preloaded progress.Set
	records   []progress.Record
	appendErr error
	loadErr   error
}

func (s *memStore) Load(context.Context) (progress.Set, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	set := make(progress.Set)
	for k := range s.preloaded {
		set.Add(k)
	}
	for _, r := range s.records {
		set.Add(r.Key())
	}
	return set, nil
}

func (s *memStore) Append(_ context.Context, r progress.Record) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memStore) Close() error { return nil }

type fixture struct {
	resolver  *fakeResolver
	prober    *fakeProber
	detector  *fakeDetector
	validator *fakeValidator
	store     *memStore
}

func newFixture() *fixture {
	return &fixture{
		resolver: &fakeResolver{hosts: map[string][]string{
			"example.com": {"mx1.example.com", "mx2.example.com"},
			"catch.io":    {"mx.catch.io"},
		}},
		prober:    &fakeProber{accept: map[string]bool{}},
		detector:  &fakeDetector{catchAll: map[string]bool{"catch.io": true}},
		validator: &fakeValidator{accept: map[string]bool{}},
		store:     &memStore{},
	}
}

func (fx *fixture) finder(t *testing.T, opts Options) *Finder {
	t.Helper()
	log, _ := test.NewNullLogger()
	f, err := New(Deps{
		Resolver:  fx.resolver,
		Prober:    fx.prober,
		Detector:  fx.detector,
		Validator: fx.validator,
		Store:     fx.store,
	}, opts, log)
	require.NoError(t, err)
	f.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return f
}

func defaultOptions() Options {
	return Options{DetectCatchAll: true, Candidates: candidates.DefaultOptions()}
}

func TestFinder_FirstValidatedCandidateWins(t *testing.T) {
	fx := newFixture()
	fx.prober.accept["jane.doe@example.com"] = true
	fx.prober.accept["jdoe@example.com"] = true
	fx.validator.accept["jane.doe@example.com"] = true

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Jane Doe", Domain: "Example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"jane@example.com", "jane.doe@example.com"}, fx.prober.probed)
	assert.Equal(t, []string{"jane.doe@example.com"}, fx.validator.validated)
	assert.Equal(t, []schema.VerifiedRecord{
		{Name: "Jane Doe", Domain: "example.com", Email: "jane.doe@example.com", Method: MethodSMTPAPI},
	}, report.Records)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Found)

	require.Len(t, fx.store.records, 1)
	rec := fx.store.records[0]
	require.NotNil(t, rec.Email)
	assert.Equal(t, "jane.doe@example.com", *rec.Email)
	assert.True(t, rec.Found)
	assert.Equal(t, "example.com", rec.Domain)
}

func TestFinder_ValidatorRejectionMovesOn(t *testing.T) {
	fx := newFixture()
	fx.prober.accept["jane@example.com"] = true
	fx.prober.accept["jdoe@example.com"] = true
	fx.validator.accept["jdoe@example.com"] = true

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Jane Doe", Domain: "example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com", "jdoe@example.com"}, fx.validator.validated)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "jdoe@example.com", report.Records[0].Email)
}

func TestFinder_NotFoundIsCheckpointed(t *testing.T) {
	fx := newFixture()

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Jane Doe", Domain: "example.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.Equal(t, 1, report.NotFound)
	assert.Len(t, fx.prober.probed, 8)

	require.Len(t, fx.store.records, 1)
	assert.Nil(t, fx.store.records[0].Email)
	assert.False(t, fx.store.records[0].Found)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), fx.store.records[0].Timestamp)
}

func TestFinder_SkipsProcessedAndDuplicateEntries(t *testing.T) {
	fx := newFixture()
	fx.store.preloaded = progress.Set{}
	fx.store.preloaded.Add(schema.NewKey("example.com", "john smith"))

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "John  Smith", Domain: "EXAMPLE.com"},
		{FullName: "Jane Doe", Domain: "example.com"},
		{FullName: " jane doe ", Domain: "example.com "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, fx.store.records, 1)
	assert.Equal(t, "Jane Doe", fx.store.records[0].Name)
}

func TestFinder_ResumeDoesNotReprocess(t *testing.T) {
	fx := newFixture()
	entries := []schema.Entry{{FullName: "Jane Doe", Domain: "example.com"}}

	_, err := fx.finder(t, defaultOptions()).Run(context.Background(), entries)
	require.NoError(t, err)
	probes := len(fx.prober.probed)

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, fx.prober.probed, probes)
	assert.Len(t, fx.store.records, 1)
}

func TestFinder_CatchAllDomainMethodAndCaches(t *testing.T) {
	fx := newFixture()
	fx.prober.accept["ann@catch.io"] = true
	fx.prober.accept["bob@catch.io"] = true
	fx.validator.accept["ann@catch.io"] = true
	fx.validator.accept["bob@catch.io"] = true

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Ann", Domain: "catch.io"},
		{FullName: "Bob", Domain: "catch.io"},
	})
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	for _, r := range report.Records {
		assert.Equal(t, MethodSMTPAPICatchAll, r.Method)
	}
	assert.Equal(t, 1, fx.detector.calls)
	assert.Equal(t, 1, fx.resolver.calls["catch.io"])
}

func TestFinder_SkipValidation(t *testing.T) {
	t.Run("smtp acceptance trusted", func(t *testing.T) {
		fx := newFixture()
		fx.prober.accept["jane@example.com"] = true
		opts := defaultOptions()
		opts.SkipValidation = true

		report, err := fx.finder(t, opts).Run(context.Background(), []schema.Entry{
			{FullName: "Jane Doe", Domain: "example.com"},
		})
		require.NoError(t, err)
		require.Len(t, report.Records, 1)
		assert.Equal(t, MethodSMTP, report.Records[0].Method)
		assert.Empty(t, fx.validator.validated)
	})

	t.Run("catch-all domain not trusted", func(t *testing.T) {
		fx := newFixture()
		fx.prober.accept["ann@catch.io"] = true
		opts := defaultOptions()
		opts.SkipValidation = true

		report, err := fx.finder(t, opts).Run(context.Background(), []schema.Entry{
			{FullName: "Ann", Domain: "catch.io"},
		})
		require.NoError(t, err)
		assert.Empty(t, report.Records)
		assert.Equal(t, 1, report.NotFound)
		assert.Empty(t, fx.prober.probed)
	})
}

func TestFinder_NoMXStillProbes(t *testing.T) {
	fx := newFixture()

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Solo", Domain: "nomx.test"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"solo@nomx.test"}, fx.prober.probed)
	assert.Equal(t, 0, fx.detector.calls)
	assert.Equal(t, 1, report.NotFound)

	require.Len(t, fx.store.records, 1)
	rec := fx.store.records[0]
	assert.False(t, rec.Found)
	assert.Nil(t, rec.Email)
	assert.Equal(t, "nomx.test", rec.Domain)
}

func TestFinder_WebsiteDomainIsNormalized(t *testing.T) {
	fx := newFixture()
	fx.prober.accept["jane.doe@example.com"] = true
	fx.validator.accept["jane.doe@example.com"] = true

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Jane Doe", Domain: "https://www.example.com/"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.resolver.calls["example.com"])
	require.NotEmpty(t, fx.prober.probed)
	assert.Equal(t, "jane@example.com", fx.prober.probed[0])
	require.Len(t, report.Records, 1)
	assert.Equal(t, "example.com", report.Records[0].Domain)
	assert.Equal(t, "jane.doe@example.com", report.Records[0].Email)
}

func TestFinder_CheckpointFailureIsNotFatal(t *testing.T) {
	fx := newFixture()
	fx.store.appendErr = errors.New("disk full")

	report, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{
		{FullName: "Ann", Domain: "example.com"},
		{FullName: "Bob", Domain: "example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.CheckpointErrors)
}

func TestFinder_LoadFailureIsFatal(t *testing.T) {
	fx := newFixture()
	fx.store.loadErr = errors.New("connection refused")

	_, err := fx.finder(t, defaultOptions()).Run(context.Background(), []schema.Entry{{FullName: "Ann", Domain: "example.com"}})
	assert.ErrorContains(t, err, "load progress")
}

func TestFinder_CancellationLeavesEntryUncheckpointed(t *testing.T) {
	fx := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.prober.onCall = func(address string) {
		if address == "bob@example.com" {
			cancel()
		}
	}

	report, err := fx.finder(t, defaultOptions()).Run(ctx, []schema.Entry{
		{FullName: "Ann", Domain: "example.com"},
		{FullName: "Bob", Domain: "example.com"},
		{FullName: "Cid", Domain: "example.com"},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, fx.store.records, 1)
	assert.Equal(t, "Ann", fx.store.records[0].Name)
	assert.NotContains(t, fx.prober.probed, "cid@example.com")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	fx := newFixture()
	log := logrus.New()

	_, err := New(Deps{Prober: fx.prober, Store: fx.store}, Options{}, log)
	assert.Error(t, err)

	_, err = New(Deps{Resolver: fx.resolver, Prober: fx.prober, Store: fx.store}, Options{}, log)
	assert.ErrorContains(t, err, "validator")

	_, err = New(Deps{Resolver: fx.resolver, Prober: fx.prober, Store: fx.store, Validator: fx.validator}, Options{DetectCatchAll: true}, log)
	assert.ErrorContains(t, err, "detector")

	_, err = New(Deps{Resolver: fx.resolver, Prober: fx.prober, Store: fx.store}, Options{SkipValidation: true}, log)
	assert.NoError(t, err)
}

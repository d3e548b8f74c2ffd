package workflow_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"livelink/internal/assetdb"
	"livelink/internal/audit"
	"livelink/internal/immich"
	"livelink/internal/linker"
	"livelink/internal/logging"
	"livelink/internal/pairing"
	"livelink/internal/runlog"
	"livelink/internal/testsupport"
	"livelink/internal/workflow"
)

type fakeRepo struct {
	videos []assetdb.VideoCandidate
	photos []assetdb.Asset
	counts map[string]int
}

func (f *fakeRepo) FindUserID(context.Context, string) (string, error) {
	return "11111111-1111-1111-1111-111111111111", nil
}

func (f *fakeRepo) FindVideoCandidates(context.Context) ([]assetdb.VideoCandidate, error) {
	return f.videos, nil
}

func (f *fakeRepo) FindUnlinkedPhotoCandidates(_ context.Context, _ []string, _ assetdb.MatchMode) ([]assetdb.Asset, error) {
	return f.photos, nil
}

func (f *fakeRepo) CountPhotosByStem(context.Context, []string) (map[string]int, error) {
	return f.counts, nil
}

type fakeAPI struct {
	connectivityErr error
	fetched         []string
}

func (f *fakeAPI) CheckConnectivity(context.Context) error { return f.connectivityErr }

func (f *fakeAPI) GetAsset(_ context.Context, id string) (immich.AssetInfo, error) {
	f.fetched = append(f.fetched, id)
	return immich.AssetInfo{ID: id, OriginalFileName: "IMG_0001.HEIC"}, nil
}

type fakeApplier struct {
	linked   [][]pairing.PairedAsset
	unlinked [][]audit.LinkedAsset
	err      error
}

func (f *fakeApplier) Link(_ context.Context, pairs []pairing.PairedAsset) (linker.Summary, error) {
	f.linked = append(f.linked, pairs)
	return linker.Summary{Succeeded: len(pairs)}, f.err
}

func (f *fakeApplier) Unlink(_ context.Context, assets []audit.LinkedAsset) (linker.Summary, error) {
	f.unlinked = append(f.unlinked, assets)
	return linker.Summary{Succeeded: len(assets)}, f.err
}

func candidateStore() *fakeRepo {
	when := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fakeRepo{
		videos: []assetdb.VideoCandidate{
			{
				Asset:        assetdb.Asset{ID: "v1", OriginalFileName: "IMG_0001.MOV", FileCreatedAt: when},
				BaseFilename: "img_0001",
			},
			{
				Asset:        assetdb.Asset{ID: "v2", OriginalFileName: "IMG_0002.MP4", FileCreatedAt: when},
				BaseFilename: "img_0002",
			},
		},
		photos: []assetdb.Asset{
			{ID: "p1", OriginalFileName: "IMG_0001.HEIC", FileCreatedAt: when},
			{ID: "p2", OriginalFileName: "IMG_0002.JPG", FileCreatedAt: when},
		},
	}
}

type env struct {
	runner  *workflow.Runner
	api     *fakeAPI
	applier *fakeApplier
	runs    *runlog.Store
	out     *bytes.Buffer
	dir     string
}

func newEnv(t *testing.T, repo *fakeRepo, confirm workflow.Confirmer) *env {
	t.Helper()
	dir := t.TempDir()
	runs := testsupport.MustOpenRunlog(t, dir)

	api := &fakeAPI{}
	applier := &fakeApplier{}
	out := &bytes.Buffer{}
	runner := workflow.New(workflow.Deps{
		Repo:     repo,
		API:      api,
		Operator: applier,
		Recorder: audit.NewRecorder(dir, logging.NewNop()),
		Runs:     runs,
		Confirm:  confirm,
		Out:      out,
		Logger:   logging.NewNop(),
		UserName: "Jane",
	})
	return &env{runner: runner, api: api, applier: applier, runs: runs, out: out, dir: dir}
}

func auditFiles(t *testing.T, dir, prefix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.csv"))
	if err != nil {
		t.Fatalf("glob audit files: %v", err)
	}
	return matches
}

func TestLinkHappyPath(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	if err := e.runner.Link(context.Background(), workflow.LinkOptions{}); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if len(e.applier.linked) != 1 || len(e.applier.linked[0]) != 2 {
		t.Fatalf("expected one batch of 2 pairs, got %+v", e.applier.linked)
	}
	if files := auditFiles(t, e.dir, "linked_assets"); len(files) != 1 {
		t.Fatalf("expected one candidate CSV, got %v", files)
	}
	if !strings.Contains(e.out.String(), "Identified 2 candidate pairs.") {
		t.Fatalf("missing identification summary: %q", e.out.String())
	}

	runs, err := e.runs.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Outcome != runlog.OutcomeDone || runs[0].Succeeded != 2 {
		t.Fatalf("unexpected recorded run: %+v", runs)
	}
}

func TestLinkDryRunIssuesNoMutations(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	if err := e.runner.Link(context.Background(), workflow.LinkOptions{DryRun: true}); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if len(e.applier.linked) != 0 {
		t.Fatal("dry run must not call the operator")
	}
	if files := auditFiles(t, e.dir, "DRY_RUN_linked_asset"); len(files) != 1 {
		t.Fatalf("expected dry-run candidate CSV, got %v", files)
	}

	runs, err := e.runs.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Outcome != runlog.OutcomeDryRun {
		t.Fatalf("unexpected recorded run: %+v", runs)
	}
}

func TestLinkDryRunSnapshotsFullSetDespiteTestRun(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	if err := e.runner.Link(context.Background(), workflow.LinkOptions{DryRun: true, TestRun: true}); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if len(e.applier.linked) != 0 {
		t.Fatal("dry run must not call the operator")
	}

	files := auditFiles(t, e.dir, "DRY_RUN_linked_asset")
	if len(files) != 1 {
		t.Fatalf("expected one dry-run CSV, got %v", files)
	}
	file, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open dry-run CSV: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read dry-run CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("dry run must snapshot all candidates, got %d rows", len(rows)-1)
	}
}

func TestLinkDeclinedConfirmationCancels(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(false))

	if err := e.runner.Link(context.Background(), workflow.LinkOptions{}); err != nil {
		t.Fatalf("cancelled run must not error: %v", err)
	}
	if len(e.applier.linked) != 0 {
		t.Fatal("cancelled run must not call the operator")
	}
	if !strings.Contains(e.out.String(), "Aborting") {
		t.Fatalf("missing abort message: %q", e.out.String())
	}

	runs, err := e.runs.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Outcome != runlog.OutcomeCancelled {
		t.Fatalf("unexpected recorded run: %+v", runs)
	}
}

func TestLinkTestRunTruncatesToOnePair(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	if err := e.runner.Link(context.Background(), workflow.LinkOptions{TestRun: true}); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if len(e.applier.linked) != 1 || len(e.applier.linked[0]) != 1 {
		t.Fatalf("test run must link exactly one pair, got %+v", e.applier.linked)
	}
	if files := auditFiles(t, e.dir, "TEST_RUN_linked_asset"); len(files) != 1 {
		t.Fatalf("expected test-run candidate CSV, got %v", files)
	}
}

func TestLinkNoVideosIsInformational(t *testing.T) {
	e := newEnv(t, &fakeRepo{}, workflow.StaticConfirmer(true))

	err := e.runner.Link(context.Background(), workflow.LinkOptions{})
	if !errors.Is(err, workflow.ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if len(e.applier.linked) != 0 {
		t.Fatal("no-candidate run must not call the operator")
	}
}

func TestLinkConnectivityFailureAborts(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))
	e.api.connectivityErr = immich.ErrConnectivity

	err := e.runner.Link(context.Background(), workflow.LinkOptions{})
	if !errors.Is(err, immich.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if len(e.applier.linked) != 0 {
		t.Fatal("failed connectivity check must abort before mutations")
	}
}

func TestLinkPartialFailurePropagates(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))
	e.applier.err = &linker.PartialFailureError{Action: "link", Count: 1, AuditPath: "failed.csv"}

	err := e.runner.Link(context.Background(), workflow.LinkOptions{})
	var partial *linker.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}

	runs, recErr := e.runs.Recent(context.Background(), 5)
	if recErr != nil {
		t.Fatalf("Recent failed: %v", recErr)
	}
	if len(runs) != 1 || runs[0].Outcome != runlog.OutcomePartialFailure {
		t.Fatalf("unexpected recorded run: %+v", runs)
	}
}

func TestUnlinkFlow(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	recorder := audit.NewRecorder(e.dir, logging.NewNop())
	csvPath, err := recorder.SaveCandidates([]pairing.PairedAsset{
		{
			PhotoAssetID:  "6f9619ff-8b86-4d01-b42d-00cf4fc964ff",
			PhotoFilename: "IMG_0001.HEIC",
			VideoAssetID:  "7f9619ff-8b86-4d01-b42d-00cf4fc964ff",
			VideoFilename: "IMG_0001.MOV",
		},
	}, audit.TagNone)
	if err != nil {
		t.Fatalf("write input CSV: %v", err)
	}

	if err := e.runner.Unlink(context.Background(), workflow.UnlinkOptions{InputCSV: csvPath}); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if len(e.applier.unlinked) != 1 || len(e.applier.unlinked[0]) != 1 {
		t.Fatalf("expected one batch of 1 asset, got %+v", e.applier.unlinked)
	}
	if got := e.applier.unlinked[0][0].PhotoAssetID; got != "6f9619ff-8b86-4d01-b42d-00cf4fc964ff" {
		t.Fatalf("unexpected asset id: %s", got)
	}
}

func TestUnlinkDryRun(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	recorder := audit.NewRecorder(e.dir, logging.NewNop())
	csvPath, err := recorder.SaveCandidates([]pairing.PairedAsset{
		{PhotoAssetID: "6f9619ff-8b86-4d01-b42d-00cf4fc964ff", PhotoFilename: "IMG_0001.HEIC"},
	}, audit.TagNone)
	if err != nil {
		t.Fatalf("write input CSV: %v", err)
	}

	if err := e.runner.Unlink(context.Background(), workflow.UnlinkOptions{InputCSV: csvPath, DryRun: true}); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if len(e.applier.unlinked) != 0 {
		t.Fatal("dry run must not call the operator")
	}
	if !strings.Contains(e.out.String(), "would be unlinked") {
		t.Fatalf("missing dry-run summary: %q", e.out.String())
	}
}

func TestUnlinkMissingFileFails(t *testing.T) {
	e := newEnv(t, candidateStore(), workflow.StaticConfirmer(true))

	err := e.runner.Unlink(context.Background(), workflow.UnlinkOptions{InputCSV: filepath.Join(e.dir, "absent.csv")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLockPreventsConcurrentRuns(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "livelink.lock")

	held := flock.New(lockPath)
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer held.Unlock()

	runner := workflow.New(workflow.Deps{
		Repo:     candidateStore(),
		API:      &fakeAPI{},
		Operator: &fakeApplier{},
		Recorder: audit.NewRecorder(dir, logging.NewNop()),
		Confirm:  workflow.StaticConfirmer(true),
		Out:      &bytes.Buffer{},
		Logger:   logging.NewNop(),
		UserName: "Jane",
		LockPath: lockPath,
	})

	if err := runner.Link(context.Background(), workflow.LinkOptions{}); !errors.Is(err, workflow.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestConfirmerReadsAnswer(t *testing.T) {
	out := &bytes.Buffer{}
	yes := workflow.StaticConfirmer(true)
	ok, err := yes.Confirm("proceed?")
	if err != nil || !ok {
		t.Fatalf("static confirmer: ok=%v err=%v", ok, err)
	}
	if out.Len() != 0 {
		t.Fatal("static confirmer must not prompt")
	}
}

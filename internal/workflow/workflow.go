package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"livelink/internal/assetdb"
	"livelink/internal/audit"
	"livelink/internal/immich"
	"livelink/internal/linker"
	"livelink/internal/logging"
	"livelink/internal/pairing"
	"livelink/internal/runlog"
)

// ErrNoCandidates signals that identification found nothing to do. Callers
// treat it as an informational outcome, not a failure.
var ErrNoCandidates = errors.New("no candidate assets found")

// ErrLocked signals that another run holds the lock file.
var ErrLocked = errors.New("another run is already in progress")

// Repository is the read surface the runner needs from the asset database.
type Repository interface {
	FindUserID(ctx context.Context, name string) (string, error)
	FindVideoCandidates(ctx context.Context) ([]assetdb.VideoCandidate, error)
	FindUnlinkedPhotoCandidates(ctx context.Context, baseFilenames []string, mode assetdb.MatchMode) ([]assetdb.Asset, error)
	CountPhotosByStem(ctx context.Context, stems []string) (map[string]int, error)
}

// API is the server surface the runner touches outside the linking batch.
type API interface {
	CheckConnectivity(ctx context.Context) error
	GetAsset(ctx context.Context, id string) (immich.AssetInfo, error)
}

// Applier executes the mutation batch.
type Applier interface {
	Link(ctx context.Context, pairs []pairing.PairedAsset) (linker.Summary, error)
	Unlink(ctx context.Context, assets []audit.LinkedAsset) (linker.Summary, error)
}

// PreviewFunc renders the example pair shown before confirmation.
type PreviewFunc func(photo, video immich.AssetInfo)

// LinkOptions control one linking run.
type LinkOptions struct {
	DryRun           bool
	TestRun          bool
	Mode             assetdb.MatchMode
	StrictDuplicates bool
	MaxTimeDiff      time.Duration
}

// UnlinkOptions control one unlinking run.
type UnlinkOptions struct {
	DryRun   bool
	InputCSV string
}

// Deps carries the collaborators for a Runner. Runs and Preview may be nil;
// LockPath may be empty to disable locking.
type Deps struct {
	Repo     Repository
	API      API
	Operator Applier
	Recorder *audit.Recorder
	Runs     *runlog.Store
	Confirm  Confirmer
	Preview  PreviewFunc
	Out      io.Writer
	Logger   *slog.Logger
	UserName string
	LockPath string
}

// Runner drives a complete link or unlink run: identification, preview,
// confirmation, mutation, and history recording.
type Runner struct {
	deps   Deps
	logger *slog.Logger
}

// New constructs a Runner from its collaborators.
func New(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{deps: deps, logger: logging.WithComponent(logger, "workflow")}
}

// Link runs the full reconciliation flow. It returns ErrNoCandidates when
// there is nothing to link, nil on a completed or cancelled run, and the
// operator's PartialFailureError when some updates failed.
func (r *Runner) Link(ctx context.Context, opts LinkOptions) error {
	release, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	started := time.Now().UTC()
	run := runlog.Run{Mode: "link", DryRun: opts.DryRun, TestRun: opts.TestRun, StartedAt: started}

	r.logger.Info("link run starting",
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("test_run", opts.TestRun),
		logging.String("match_mode", opts.Mode.String()))

	pairs, err := r.identify(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrNoCandidates) {
			run.Outcome = runlog.OutcomeNoCandidates
			r.record(ctx, run)
		}
		return err
	}
	run.Candidates = len(pairs)

	r.previewExample(ctx, pairs[0])
	fmt.Fprintf(r.deps.Out, "Identified %d candidate pairs.\n", len(pairs))

	// Dry run snapshots the full candidate set; test-run truncation only
	// applies once a mutating run is on the table.
	if opts.DryRun {
		run.Outcome = runlog.OutcomeDryRun
		if err := r.saveDryRun(pairs, &run); err != nil {
			return err
		}
		r.record(ctx, run)
		return nil
	}

	if opts.TestRun {
		pairs = pairs[:1]
		fmt.Fprintln(r.deps.Out, "Test run: only the first pair will be linked.")
	}

	ok, err := r.deps.Confirm.Confirm(fmt.Sprintf("Link %d assets?", len(pairs)))
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if !ok {
		fmt.Fprintln(r.deps.Out, "Aborting: no assets were modified. Use --yes to run non-interactively.")
		run.Outcome = runlog.OutcomeCancelled
		r.record(ctx, run)
		return nil
	}

	tag := audit.TagNone
	if opts.TestRun {
		tag = audit.TagTestRun
	}
	candidatePath, err := r.deps.Recorder.SaveCandidates(pairs, tag)
	if err != nil {
		return fmt.Errorf("save candidate list: %w", err)
	}
	fmt.Fprintf(r.deps.Out, "Candidate list saved to %s\n", candidatePath)

	summary, linkErr := r.deps.Operator.Link(ctx, pairs)
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed
	run.AuditFile = summary.AuditPath
	if run.AuditFile == "" {
		run.AuditFile = candidatePath
	}
	run.Outcome = runlog.OutcomeDone
	if linkErr != nil {
		run.Outcome = runlog.OutcomePartialFailure
	}
	r.record(ctx, run)
	return linkErr
}

// Unlink reverts links listed in a previously written candidate CSV.
func (r *Runner) Unlink(ctx context.Context, opts UnlinkOptions) error {
	release, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	started := time.Now().UTC()
	run := runlog.Run{Mode: "unlink", DryRun: opts.DryRun, StartedAt: started}

	assets, err := audit.ReadLinkedAssets(opts.InputCSV)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		run.Outcome = runlog.OutcomeNoCandidates
		r.record(ctx, run)
		return fmt.Errorf("%w: %s lists no assets", ErrNoCandidates, opts.InputCSV)
	}
	run.Candidates = len(assets)

	if err := r.deps.API.CheckConnectivity(ctx); err != nil {
		return err
	}

	fmt.Fprintf(r.deps.Out, "Loaded %d linked assets from %s\n", len(assets), opts.InputCSV)

	if opts.DryRun {
		fmt.Fprintf(r.deps.Out, "Dry run: %d assets would be unlinked.\n", len(assets))
		run.Outcome = runlog.OutcomeDryRun
		r.record(ctx, run)
		return nil
	}

	ok, err := r.deps.Confirm.Confirm(fmt.Sprintf("Unlink %d assets?", len(assets)))
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if !ok {
		fmt.Fprintln(r.deps.Out, "Aborting: no assets were modified. Use --yes to run non-interactively.")
		run.Outcome = runlog.OutcomeCancelled
		r.record(ctx, run)
		return nil
	}

	summary, unlinkErr := r.deps.Operator.Unlink(ctx, assets)
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed
	run.AuditFile = summary.AuditPath
	run.Outcome = runlog.OutcomeDone
	if unlinkErr != nil {
		run.Outcome = runlog.OutcomePartialFailure
	}
	r.record(ctx, run)
	return unlinkErr
}

// identify runs the read phase: connectivity and user checks, candidate
// queries, and the pairing join.
func (r *Runner) identify(ctx context.Context, opts LinkOptions) ([]pairing.PairedAsset, error) {
	if err := r.deps.API.CheckConnectivity(ctx); err != nil {
		return nil, err
	}

	userID, err := r.deps.Repo.FindUserID(ctx, r.deps.UserName)
	if err != nil {
		return nil, err
	}
	r.logger.Info("reconciling assets",
		logging.String("user", r.deps.UserName),
		logging.String("user_id", userID))

	videos, err := r.deps.Repo.FindVideoCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no video assets in the store", ErrNoCandidates)
	}

	bases := make([]string, 0, len(videos))
	seen := make(map[string]struct{}, len(videos))
	for _, video := range videos {
		if _, ok := seen[video.BaseFilename]; ok {
			continue
		}
		seen[video.BaseFilename] = struct{}{}
		bases = append(bases, video.BaseFilename)
	}

	photos, err := r.deps.Repo.FindUnlinkedPhotoCandidates(ctx, bases, opts.Mode)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("%w: every matching photo is already linked", ErrNoCandidates)
	}

	pairOpts := pairing.Options{Mode: opts.Mode, MaxTimeDiff: opts.MaxTimeDiff}
	if opts.StrictDuplicates {
		stems := make([]string, 0, len(photos))
		for _, photo := range photos {
			stems = append(stems, assetdb.Stem(photo.OriginalFileName))
		}
		counts, err := r.deps.Repo.CountPhotosByStem(ctx, stems)
		if err != nil {
			return nil, err
		}
		pairOpts.StemCounts = counts
	}

	result := pairing.Pair(videos, photos, pairOpts)
	if result.AmbiguousDropped > 0 {
		r.logger.Warn("ambiguous duplicates dropped", logging.Int("count", result.AmbiguousDropped))
	}
	if result.TimeDiffDropped > 0 {
		r.logger.Warn("timestamp-mismatched pairs dropped",
			logging.Int("count", result.TimeDiffDropped),
			logging.Duration("tolerance", opts.MaxTimeDiff))
	}
	if len(result.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no photo/video pairs matched", ErrNoCandidates)
	}
	return result.Pairs, nil
}

// previewExample fetches both assets of the first pair and hands them to the
// preview renderer. Fetch failures only degrade the preview; the run goes on.
func (r *Runner) previewExample(ctx context.Context, pair pairing.PairedAsset) {
	if r.deps.Preview == nil {
		return
	}
	photo, err := r.deps.API.GetAsset(ctx, pair.PhotoAssetID)
	if err != nil {
		r.logger.Warn("example photo fetch failed", logging.Error(err))
		return
	}
	video, err := r.deps.API.GetAsset(ctx, pair.VideoAssetID)
	if err != nil {
		r.logger.Warn("example video fetch failed", logging.Error(err))
		return
	}
	r.deps.Preview(photo, video)
}

func (r *Runner) saveDryRun(pairs []pairing.PairedAsset, run *runlog.Run) error {
	save, err := r.deps.Confirm.Confirm("Save the candidate list to a CSV file?")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if !save {
		fmt.Fprintln(r.deps.Out, "Dry run complete: no assets were modified.")
		return nil
	}
	path, err := r.deps.Recorder.SaveCandidates(pairs, audit.TagDryRun)
	if err != nil {
		return fmt.Errorf("save candidate list: %w", err)
	}
	run.AuditFile = path
	fmt.Fprintf(r.deps.Out, "Dry run complete: candidate list saved to %s\n", path)
	return nil
}

func (r *Runner) acquireLock() (func(), error) {
	if r.deps.LockPath == "" {
		return func() {}, nil
	}
	lock := flock.New(r.deps.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", r.deps.LockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, r.deps.LockPath)
	}
	return func() { _ = lock.Unlock() }, nil
}

// record appends the run to the history ledger. Ledger failures are logged
// and swallowed; history must never fail a run that already happened.
func (r *Runner) record(ctx context.Context, run runlog.Run) {
	if r.deps.Runs == nil {
		return
	}
	run.FinishedAt = time.Now().UTC()
	if _, err := r.deps.Runs.Record(ctx, run); err != nil {
		r.logger.Warn("run history write failed", logging.Error(err))
	}
}

package linker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"livelink/internal/audit"
	"livelink/internal/immich"
	"livelink/internal/logging"
	"livelink/internal/pairing"
)

// API is the mutation surface the operator needs from the server client.
type API interface {
	SetLivePhotoVideo(ctx context.Context, photoID string, videoID *string) error
}

// Summary reports the outcome of one batch.
type Summary struct {
	Succeeded int
	Failed    int
	AuditPath string
}

// PartialFailureError is the terminal signal for a batch in which at least
// one update failed. It names the audit file so the operator can retry the
// failed subset.
type PartialFailureError struct {
	Action    string
	Count     int
	AuditPath string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("failed to %s %d assets; see %s for details", e.Action, e.Count, e.AuditPath)
}

// Operator applies link and unlink mutations sequentially, one API call per
// asset, collecting per-item failures instead of aborting the batch.
type Operator struct {
	api      API
	recorder *audit.Recorder
	out      io.Writer
	logger   *slog.Logger
}

// NewOperator constructs a link operator. Progress lines are written to out.
func NewOperator(api API, recorder *audit.Recorder, out io.Writer, logger *slog.Logger) *Operator {
	return &Operator{
		api:      api,
		recorder: recorder,
		out:      out,
		logger:   logging.WithComponent(logger, "linker"),
	}
}

// Link sets the cross-reference field on every paired photo. All pairs are
// processed even when some fail; failures are flushed to a timestamped audit
// file and reported as a PartialFailureError.
func (o *Operator) Link(ctx context.Context, pairs []pairing.PairedAsset) (Summary, error) {
	var summary Summary
	var failures []audit.LinkFailure

	for i, pair := range pairs {
		fmt.Fprintf(o.out, "Linking asset: %d/%d\r", i+1, len(pairs))

		videoID := pair.VideoAssetID
		if err := o.api.SetLivePhotoVideo(ctx, pair.PhotoAssetID, &videoID); err != nil {
			status, message := classify(err)
			failures = append(failures, audit.LinkFailure{
				PairedAsset:  pair,
				ErrorStatus:  status,
				ErrorMessage: message,
			})
			o.logger.Warn("link update failed",
				logging.String("photo_asset_id", pair.PhotoAssetID),
				logging.Int("status", status),
				logging.String("message", message))
			continue
		}
		summary.Succeeded++
	}
	fmt.Fprintln(o.out)
	fmt.Fprintf(o.out, "Update summary: successfully linked %d assets.\n", summary.Succeeded)

	return o.finish(summary, failures, "link")
}

// Unlink clears the cross-reference field on every listed photo.
func (o *Operator) Unlink(ctx context.Context, assets []audit.LinkedAsset) (Summary, error) {
	var summary Summary
	var failures []audit.UnlinkFailure

	for i, asset := range assets {
		fmt.Fprintf(o.out, "Unlinking asset: %d/%d\r", i+1, len(assets))

		if err := o.api.SetLivePhotoVideo(ctx, asset.PhotoAssetID, nil); err != nil {
			status, message := classify(err)
			failures = append(failures, audit.UnlinkFailure{
				PhotoAssetID:  asset.PhotoAssetID,
				PhotoFilename: asset.PhotoFilename,
				ErrorStatus:   status,
				ErrorMessage:  message,
			})
			o.logger.Warn("unlink update failed",
				logging.String("photo_asset_id", asset.PhotoAssetID),
				logging.Int("status", status),
				logging.String("message", message))
			continue
		}
		summary.Succeeded++
	}
	fmt.Fprintln(o.out)
	fmt.Fprintf(o.out, "Update summary: successfully unlinked %d assets.\n", summary.Succeeded)

	if len(failures) == 0 {
		return summary, nil
	}
	summary.Failed = len(failures)
	path, err := o.recorder.SaveUnlinkFailures(failures)
	if err != nil {
		return summary, fmt.Errorf("save unlink failures: %w", err)
	}
	summary.AuditPath = path
	return summary, &PartialFailureError{Action: "unlink", Count: len(failures), AuditPath: path}
}

func (o *Operator) finish(summary Summary, failures []audit.LinkFailure, action string) (Summary, error) {
	if len(failures) == 0 {
		return summary, nil
	}
	summary.Failed = len(failures)
	path, err := o.recorder.SaveLinkFailures(failures)
	if err != nil {
		return summary, fmt.Errorf("save link failures: %w", err)
	}
	summary.AuditPath = path
	return summary, &PartialFailureError{Action: action, Count: len(failures), AuditPath: path}
}

// classify splits an update error into the audit columns. API status errors
// keep their HTTP status; transport errors are recorded with status 0.
func classify(err error) (int, string) {
	var statusErr *immich.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, statusErr.Message
	}
	return 0, err.Error()
}

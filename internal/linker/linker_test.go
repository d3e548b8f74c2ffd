package linker_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"livelink/internal/audit"
	"livelink/internal/immich"
	"livelink/internal/linker"
	"livelink/internal/logging"
	"livelink/internal/pairing"
)

type fakeAPI struct {
	calls    []call
	failures map[string]error
}

type call struct {
	photoID string
	videoID *string
}

func (f *fakeAPI) SetLivePhotoVideo(_ context.Context, photoID string, videoID *string) error {
	f.calls = append(f.calls, call{photoID: photoID, videoID: videoID})
	if err, ok := f.failures[photoID]; ok {
		return err
	}
	return nil
}

func pair(photoID, videoID string) pairing.PairedAsset {
	return pairing.PairedAsset{
		PhotoAssetID:  photoID,
		PhotoFilename: "IMG_0001.HEIC",
		PhotoFileDate: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		VideoAssetID:  videoID,
		VideoFilename: "IMG_0001.MOV",
		VideoFileDate: time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC),
	}
}

func newOperator(t *testing.T, api *fakeAPI) (*linker.Operator, *bytes.Buffer) {
	t.Helper()
	recorder := audit.NewRecorder(t.TempDir(), logging.NewNop())
	out := &bytes.Buffer{}
	return linker.NewOperator(api, recorder, out, logging.NewNop()), out
}

func TestLinkSuccess(t *testing.T) {
	api := &fakeAPI{}
	operator, out := newOperator(t, api)

	summary, err := operator.Link(context.Background(), []pairing.PairedAsset{
		pair("p1", "v1"),
		pair("p2", "v2"),
	})
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(api.calls) != 2 {
		t.Fatalf("expected 2 API calls, got %d", len(api.calls))
	}
	if api.calls[0].videoID == nil || *api.calls[0].videoID != "v1" {
		t.Fatalf("unexpected first call: %+v", api.calls[0])
	}
	if !strings.Contains(out.String(), "successfully linked 2 assets") {
		t.Fatalf("missing summary line: %q", out.String())
	}
}

func TestLinkPartialFailureContinuesAndAudits(t *testing.T) {
	api := &fakeAPI{failures: map[string]error{
		"p2": &immich.StatusError{StatusCode: 404, Message: "NotFound: asset missing"},
	}}
	operator, _ := newOperator(t, api)

	summary, err := operator.Link(context.Background(), []pairing.PairedAsset{
		pair("p1", "v1"),
		pair("p2", "v2"),
		pair("p3", "v3"),
	})

	// The batch runs to completion despite the mid-batch failure.
	if len(api.calls) != 3 {
		t.Fatalf("expected 3 API calls, got %d", len(api.calls))
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var partial *linker.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Count != 1 || partial.AuditPath == "" {
		t.Fatalf("unexpected partial failure: %+v", partial)
	}
	if partial.AuditPath != summary.AuditPath {
		t.Fatalf("summary and error disagree on audit path")
	}

	file, readErr := os.Open(partial.AuditPath)
	if readErr != nil {
		t.Fatalf("audit file unreadable: %v", readErr)
	}
	defer file.Close()
	rows, readErr := csv.NewReader(file).ReadAll()
	if readErr != nil {
		t.Fatalf("audit file malformed: %v", readErr)
	}
	if len(rows) != 2 || rows[1][0] != "p2" || rows[1][6] != "404" {
		t.Fatalf("unexpected audit rows: %v", rows)
	}
}

func TestLinkTransportErrorRecordedWithStatusZero(t *testing.T) {
	api := &fakeAPI{failures: map[string]error{
		"p1": errors.New("connection refused"),
	}}
	operator, _ := newOperator(t, api)

	summary, err := operator.Link(context.Background(), []pairing.PairedAsset{pair("p1", "v1")})
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	var partial *linker.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
}

func TestUnlinkClearsLink(t *testing.T) {
	api := &fakeAPI{}
	operator, out := newOperator(t, api)

	summary, err := operator.Unlink(context.Background(), []audit.LinkedAsset{
		{PhotoAssetID: "p1", PhotoFilename: "IMG_0001.HEIC"},
	})
	if err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if api.calls[0].videoID != nil {
		t.Fatalf("unlink must clear the link, got %v", api.calls[0].videoID)
	}
	if !strings.Contains(out.String(), "successfully unlinked 1 assets") {
		t.Fatalf("missing summary line: %q", out.String())
	}
}

func TestUnlinkPartialFailure(t *testing.T) {
	api := &fakeAPI{failures: map[string]error{
		"p1": &immich.StatusError{StatusCode: 500, Message: "Internal: boom"},
	}}
	operator, _ := newOperator(t, api)

	_, err := operator.Unlink(context.Background(), []audit.LinkedAsset{
		{PhotoAssetID: "p1", PhotoFilename: "IMG_0001.HEIC"},
		{PhotoAssetID: "p2", PhotoFilename: "IMG_0002.HEIC"},
	})

	var partial *linker.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Action != "unlink" || partial.Count != 1 {
		t.Fatalf("unexpected partial failure: %+v", partial)
	}
	if !strings.Contains(partial.Error(), partial.AuditPath) {
		t.Fatalf("error message must name the audit file: %v", partial)
	}
}

package audit

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"livelink/internal/logging"
	"livelink/internal/pairing"
)

// Tag marks candidate snapshots produced outside a real linking run.
type Tag int

const (
	TagNone Tag = iota
	TagDryRun
	TagTestRun
)

// LinkFailure is one failed link update: the pair plus the API error.
type LinkFailure struct {
	pairing.PairedAsset
	ErrorStatus  int
	ErrorMessage string
}

// UnlinkFailure is one failed unlink update.
type UnlinkFailure struct {
	PhotoAssetID  string
	PhotoFilename string
	ErrorStatus   int
	ErrorMessage  string
}

var candidateHeader = []string{
	"photo_asset_id", "photo_filename", "photo_filedate",
	"video_asset_id", "video_filename", "video_filedate",
}

// Recorder persists candidate and failure sets as timestamped CSV snapshots.
type Recorder struct {
	dir    string
	logger *slog.Logger
}

// NewRecorder returns a recorder writing into dir. The directory is created
// on first save.
func NewRecorder(dir string, logger *slog.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logging.WithComponent(logger, "audit")}
}

// SaveCandidates writes the paired candidate set. The filename prefix encodes
// the run tag: linked_assets, DRY_RUN_linked_asset, or TEST_RUN_linked_asset.
func (r *Recorder) SaveCandidates(pairs []pairing.PairedAsset, tag Tag) (string, error) {
	prefix := "linked_assets"
	switch tag {
	case TagDryRun:
		prefix = "DRY_RUN_linked_asset"
	case TagTestRun:
		prefix = "TEST_RUN_linked_asset"
	}

	rows := make([][]string, 0, len(pairs))
	for _, pair := range pairs {
		rows = append(rows, candidateRow(pair))
	}
	return r.write(prefix, candidateHeader, rows)
}

// SaveLinkFailures writes the link failure set: candidate columns plus
// error_status and error_message, in that order.
func (r *Recorder) SaveLinkFailures(failures []LinkFailure) (string, error) {
	header := append(append([]string{}, candidateHeader...), "error_status", "error_message")
	rows := make([][]string, 0, len(failures))
	for _, failure := range failures {
		row := append(candidateRow(failure.PairedAsset),
			strconv.Itoa(failure.ErrorStatus), failure.ErrorMessage)
		rows = append(rows, row)
	}
	return r.write("failed_updates", header, rows)
}

// SaveUnlinkFailures writes the unlink failure set.
func (r *Recorder) SaveUnlinkFailures(failures []UnlinkFailure) (string, error) {
	header := []string{"photo_asset_id", "photo_filename", "error_status", "error_message"}
	rows := make([][]string, 0, len(failures))
	for _, failure := range failures {
		rows = append(rows, []string{
			failure.PhotoAssetID,
			failure.PhotoFilename,
			strconv.Itoa(failure.ErrorStatus),
			failure.ErrorMessage,
		})
	}
	return r.write("failed_unlinks", header, rows)
}

func (r *Recorder) write(prefix string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audit directory %q: %w", r.dir, err)
	}

	timestamp := time.Now().Format("2006_01_02_150405")
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.csv", prefix, timestamp))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audit file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write audit header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write audit rows: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush audit file: %w", err)
	}

	r.logger.Debug("audit file written",
		logging.String("path", path),
		logging.Int("rows", len(rows)))
	return path, nil
}

func candidateRow(pair pairing.PairedAsset) []string {
	return []string{
		pair.PhotoAssetID,
		pair.PhotoFilename,
		formatDate(pair.PhotoFileDate),
		pair.VideoAssetID,
		pair.VideoFilename,
		formatDate(pair.VideoFileDate),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingColumns is returned when an unlink input CSV lacks required
// columns.
var ErrMissingColumns = errors.New("csv missing required columns")

// LinkedAsset is one row of a previously written candidate CSV, reduced to
// the columns the unlink path needs.
type LinkedAsset struct {
	PhotoAssetID  string
	PhotoFilename string
}

// ReadLinkedAssets loads an audit CSV produced by a linking run. The file
// must contain at least photo_asset_id and photo_filename columns; asset ids
// must be UUIDs. A missing file surfaces the underlying os error.
func ReadLinkedAssets(path string) ([]LinkedAsset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open linked-assets csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idCol, filenameCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "photo_asset_id":
			idCol = i
		case "photo_filename":
			filenameCol = i
		}
	}
	if idCol < 0 || filenameCol < 0 {
		missing := make([]string, 0, 2)
		if idCol < 0 {
			missing = append(missing, "photo_asset_id")
		}
		if filenameCol < 0 {
			missing = append(missing, "photo_filename")
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var assets []LinkedAsset
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		id := strings.TrimSpace(record[idCol])
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("line %d: photo_asset_id %q is not a valid asset id", line, id)
		}
		assets = append(assets, LinkedAsset{
			PhotoAssetID:  id,
			PhotoFilename: record[filenameCol],
		})
	}
	return assets, nil
}

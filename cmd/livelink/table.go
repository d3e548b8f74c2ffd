package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"livelink/internal/immich"
	"livelink/internal/runlog"
)

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderExamplePair shows the first candidate pair as fetched from the API,
// so the operator can eyeball the match before confirming.
func renderExamplePair(photo, video immich.AssetInfo) string {
	return renderTable(
		[]string{"Role", "Asset ID", "Filename", "Created", "Linked Video"},
		[][]string{
			{"photo", photo.ID, photo.OriginalFileName, photo.FileCreatedAt, linkedVideoLabel(photo)},
			{"video", video.ID, video.OriginalFileName, video.FileCreatedAt, ""},
		},
	)
}

func linkedVideoLabel(photo immich.AssetInfo) string {
	if photo.LivePhotoVideoID == nil {
		return "none"
	}
	return *photo.LivePhotoVideoID
}

func renderHistory(runs []runlog.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		mode := run.Mode
		if run.DryRun {
			mode += " (dry-run)"
		}
		if run.TestRun {
			mode += " (test-run)"
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			mode,
			strconv.Itoa(run.Candidates),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			string(run.Outcome),
			run.AuditFile,
		})
	}
	return renderTable(
		[]string{"Started", "Mode", "Candidates", "Succeeded", "Failed", "Outcome", "Audit File"},
		rows,
	)
}

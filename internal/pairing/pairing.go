package pairing

import (
	"strings"
	"time"

	"livelink/internal/assetdb"
)

// PairedAsset is the join of one unlinked photo and its companion video. It
// is the unit of work for linking and unlinking.
type PairedAsset struct {
	PhotoAssetID  string
	PhotoFilename string
	PhotoFileDate time.Time
	VideoAssetID  string
	VideoFilename string
	VideoFileDate time.Time
}

// Options control the optional filtering policies. The zero value matches the
// default behavior: auto match mode, no duplicate filtering, no timestamp
// tolerance.
type Options struct {
	Mode assetdb.MatchMode

	// StemCounts maps lower-cased photo stems to the number of photo assets
	// sharing them. When non-nil, pairs whose stem maps to more than one
	// asset are dropped as ambiguous duplicates.
	StemCounts map[string]int

	// MaxTimeDiff drops pairs whose photo and video timestamps differ by
	// more than the tolerance. Zero disables the check. Guards against
	// filename reuse across time.
	MaxTimeDiff time.Duration
}

// Result carries the joined pairs along with per-policy drop counts.
type Result struct {
	Pairs            []PairedAsset
	Unmatched        int
	AmbiguousDropped int
	TimeDiffDropped  int
}

// Pair joins photo candidates to video candidates on base filename. Every
// photo is inspected exactly once; photos with no matching video are dropped
// and counted rather than failing the run. A candidate whose own filename is
// a video never pairs as a photo. If either input is empty the result is
// empty.
func Pair(videos []assetdb.VideoCandidate, photos []assetdb.Asset, opts Options) Result {
	var result Result
	if len(videos) == 0 || len(photos) == 0 {
		return result
	}

	// First video wins when multiple share a base; the join stays 1:1.
	byBase := make(map[string]assetdb.VideoCandidate, len(videos))
	for _, video := range videos {
		if _, ok := byBase[video.BaseFilename]; !ok {
			byBase[video.BaseFilename] = video
		}
	}

	for _, photo := range photos {
		if assetdb.IsVideoFilename(photo.OriginalFileName) {
			result.Unmatched++
			continue
		}
		video, ok := matchVideo(byBase, photo, opts.Mode)
		if !ok {
			result.Unmatched++
			continue
		}
		if opts.StemCounts != nil && opts.StemCounts[assetdb.Stem(photo.OriginalFileName)] > 1 {
			result.AmbiguousDropped++
			continue
		}
		if opts.MaxTimeDiff > 0 {
			diff := photo.FileCreatedAt.Sub(video.FileCreatedAt)
			if diff < 0 {
				diff = -diff
			}
			if diff > opts.MaxTimeDiff {
				result.TimeDiffDropped++
				continue
			}
		}
		result.Pairs = append(result.Pairs, PairedAsset{
			PhotoAssetID:  photo.ID,
			PhotoFilename: photo.OriginalFileName,
			PhotoFileDate: photo.FileCreatedAt,
			VideoAssetID:  video.ID,
			VideoFilename: video.OriginalFileName,
			VideoFileDate: video.FileCreatedAt,
		})
	}
	return result
}

func matchVideo(byBase map[string]assetdb.VideoCandidate, photo assetdb.Asset, mode assetdb.MatchMode) (assetdb.VideoCandidate, bool) {
	filename := strings.ToLower(photo.OriginalFileName)
	switch mode {
	case assetdb.MatchFilename:
		video, ok := byBase[filename]
		return video, ok
	case assetdb.MatchStem:
		video, ok := byBase[assetdb.Stem(photo.OriginalFileName)]
		return video, ok
	default:
		if video, ok := byBase[filename]; ok {
			return video, true
		}
		video, ok := byBase[assetdb.Stem(photo.OriginalFileName)]
		return video, ok
	}
}

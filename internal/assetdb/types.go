package assetdb

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Asset is one row of the server's asset table, limited to the columns this
// tool reads. Assets are owned by the server; livelink never creates or
// deletes them.
type Asset struct {
	ID               string
	OriginalFileName string
	FileCreatedAt    time.Time
}

// VideoCandidate is a video asset with its derived join key.
type VideoCandidate struct {
	Asset
	BaseFilename string
}

// MatchMode selects how a photo filename is compared against a video's base
// filename.
type MatchMode int

const (
	// MatchAuto accepts either the full photo filename or its stem. Covers
	// both companion naming schemes: IMG_0001.HEIC + IMG_0001.MOV and
	// IMG_0001.HEIC + IMG_0001.HEIC.MOV.
	MatchAuto MatchMode = iota
	// MatchFilename compares the photo's full lower-cased filename.
	MatchFilename
	// MatchStem compares the photo's lower-cased filename with its final
	// extension stripped.
	MatchStem
)

func (m MatchMode) String() string {
	switch m {
	case MatchFilename:
		return "filename"
	case MatchStem:
		return "stem"
	default:
		return "auto"
	}
}

// ParseMatchMode parses a match mode flag value. The empty string selects
// MatchAuto.
func ParseMatchMode(value string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return MatchAuto, nil
	case "filename":
		return MatchFilename, nil
	case "stem":
		return MatchStem, nil
	default:
		return MatchAuto, fmt.Errorf("unknown match mode %q (expected auto, filename, or stem)", value)
	}
}

// videoSuffix matches the trailing video extension of a companion video
// filename, any case.
var videoSuffix = regexp.MustCompile(`(?i)\.(mov|mp4)$`)

// IsVideoFilename reports whether a filename carries a companion video
// extension.
func IsVideoFilename(name string) bool {
	return videoSuffix.MatchString(name)
}

// BaseFilename derives the lower-cased join key from a video filename by
// stripping the video extension.
func BaseFilename(videoFilename string) string {
	return strings.ToLower(videoSuffix.ReplaceAllString(videoFilename, ""))
}

// Stem lower-cases a filename and strips its final extension.
func Stem(filename string) string {
	lowered := strings.ToLower(filename)
	if idx := strings.LastIndexByte(lowered, '.'); idx > 0 {
		return lowered[:idx]
	}
	return lowered
}

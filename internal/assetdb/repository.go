package assetdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"livelink/internal/logging"
)

// ErrUnreachable marks database connectivity failures. The run aborts before
// any candidate identification when this is returned.
var ErrUnreachable = errors.New("asset database unreachable")

// ErrUserNotFound is returned when the configured account name has no row in
// the users table.
var ErrUserNotFound = errors.New("user not found")

// Repository provides read-only access to the server's asset table. All
// queries use bound parameters; filter values are never interpolated into
// SQL text.
type Repository struct {
	conn   *pgx.Conn
	logger *slog.Logger
}

// Connect opens a database connection and verifies it with a bounded ping.
func Connect(ctx context.Context, connString string, logger *slog.Logger) (*Repository, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return &Repository{
		conn:   conn,
		logger: logging.WithComponent(logger, "assetdb"),
	}, nil
}

// Close releases the database connection. The read phase owns the connection;
// the link phase never touches the database.
func (r *Repository) Close(ctx context.Context) error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close(ctx)
}

// FindUserID resolves the configured account name to its identifier, as a
// sanity check that the tool is pointed at the right database.
func (r *Repository) FindUserID(ctx context.Context, name string) (string, error) {
	var id string
	err := r.conn.QueryRow(ctx, `SELECT id FROM users WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrUserNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	return id, nil
}

// FindVideoCandidates returns every asset whose filename carries a video
// extension, with the derived base filename attached.
func (r *Repository) FindVideoCandidates(ctx context.Context) ([]VideoCandidate, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, "originalFileName", "fileCreatedAt"
		FROM asset
		WHERE "originalFileName" ~* '\.(mov|mp4)$'`)
	if err != nil {
		return nil, fmt.Errorf("query video candidates: %w", err)
	}
	defer rows.Close()

	var videos []VideoCandidate
	for rows.Next() {
		var v VideoCandidate
		if err := rows.Scan(&v.ID, &v.OriginalFileName, &v.FileCreatedAt); err != nil {
			return nil, fmt.Errorf("scan video candidate: %w", err)
		}
		v.BaseFilename = BaseFilename(v.OriginalFileName)
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video candidates: %w", err)
	}

	r.logger.Debug("video candidates fetched", logging.Int("count", len(videos)))
	return videos, nil
}

// FindUnlinkedPhotoCandidates returns photo assets with no live-photo link
// whose filename matches one of the supplied base filenames under the given
// match mode. The base filenames must already be lower-cased.
func (r *Repository) FindUnlinkedPhotoCandidates(ctx context.Context, baseFilenames []string, mode MatchMode) ([]Asset, error) {
	if len(baseFilenames) == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, photoCandidateQuery(mode), baseFilenames)
	if err != nil {
		return nil, fmt.Errorf("query photo candidates: %w", err)
	}
	defer rows.Close()

	var photos []Asset
	for rows.Next() {
		var p Asset
		if err := rows.Scan(&p.ID, &p.OriginalFileName, &p.FileCreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo candidate: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo candidates: %w", err)
	}

	r.logger.Debug("unlinked photo candidates fetched",
		logging.Int("count", len(photos)),
		logging.String("match_mode", mode.String()))
	return photos, nil
}

// CountPhotosByStem returns, for each supplied stem, how many non-video
// assets in the store share it. Used by the optional ambiguous-duplicate
// policy. The stems must already be lower-cased.
func (r *Repository) CountPhotosByStem(ctx context.Context, stems []string) (map[string]int, error) {
	if len(stems) == 0 {
		return map[string]int{}, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT lower(regexp_replace("originalFileName", '\.[^.]+$', '')) AS stem, COUNT(*)
		FROM asset
		WHERE "originalFileName" !~* '\.(mov|mp4)$'
		  AND lower(regexp_replace("originalFileName", '\.[^.]+$', '')) = ANY($1)
		GROUP BY stem`, stems)
	if err != nil {
		return nil, fmt.Errorf("query duplicate stems: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(stems))
	for rows.Next() {
		var stem string
		var count int
		if err := rows.Scan(&stem, &count); err != nil {
			return nil, fmt.Errorf("scan duplicate stem: %w", err)
		}
		counts[stem] = count
	}
	return counts, rows.Err()
}

func photoCandidateQuery(mode MatchMode) string {
	const prefix = `
		SELECT id, "originalFileName", "fileCreatedAt"
		FROM asset
		WHERE "livePhotoVideoId" IS NULL
		  AND "originalFileName" !~* '\.(mov|mp4)$'
		  AND `

	switch mode {
	case MatchFilename:
		return prefix + `lower("originalFileName") = ANY($1)`
	case MatchStem:
		return prefix + `lower(regexp_replace("originalFileName", '\.[^.]+$', '')) = ANY($1)`
	default:
		return prefix + `(lower("originalFileName") = ANY($1)
		   OR lower(regexp_replace("originalFileName", '\.[^.]+$', '')) = ANY($1))`
	}
}

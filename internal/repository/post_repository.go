package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/publora/publora/internal/models"
)

const postColumns = `id, user_id, team_id, caption, media_urls, platforms, cross_post,
		instagram_type, threads_type, youtube_type, title, thread_parts, threads_chain_ids,
		status, scheduled_for, posted_at, instagram_post_id, threads_post_id, youtube_video_id,
		metadata, created_at, updated_at`

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	ListByScope(ctx context.Context, scope models.Scope) ([]*models.Post, error)
	CheckOwner(ctx context.Context, id string, scope models.Scope) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
	UpdateStatus(ctx context.Context, status, id string) error
	SetExternalIDs(ctx context.Context, id string, ig, th, yt string, chain []string) error
	SetThreadsRefs(ctx context.Context, id string, threadsPostID string, chain []string) error
	MarkPosted(ctx context.Context, id string, postedAt time.Time) error
	UpdateSchedule(ctx context.Context, id string, scheduledFor time.Time) error
	UpdateMetadata(ctx context.Context, id string, meta models.PostMetadata) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	query := `
		INSERT INTO posts (id, user_id, team_id, caption, media_urls, platforms, cross_post,
			instagram_type, threads_type, youtube_type, title, thread_parts, threads_chain_ids,
			status, scheduled_for, posted_at, instagram_post_id, threads_post_id, youtube_video_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	mediaURLs, _ := json.Marshal(post.MediaURLs)
	platforms, _ := json.Marshal(post.Platforms)
	threadParts, _ := json.Marshal(post.ThreadParts)
	chainIDs, _ := json.Marshal(post.ThreadsChainIDs)
	metadata, _ := json.Marshal(post.Metadata)

	args := []interface{}{
		post.ID, post.UserID, post.TeamID, post.Caption, mediaURLs, platforms, post.CrossPost,
		post.InstagramType, post.ThreadsType, post.YoutubeType, post.Title, threadParts, chainIDs,
		post.Status, post.ScheduledFor, post.PostedAt, post.InstagramPostID, post.ThreadsPostID,
		post.YoutubeVideoID, metadata,
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var mediaURLs, platforms, threadParts, chainIDs, metadata []byte

	err := row.Scan(
		&post.ID, &post.UserID, &post.TeamID, &post.Caption, &mediaURLs, &platforms, &post.CrossPost,
		&post.InstagramType, &post.ThreadsType, &post.YoutubeType, &post.Title, &threadParts, &chainIDs,
		&post.Status, &post.ScheduledFor, &post.PostedAt, &post.InstagramPostID, &post.ThreadsPostID,
		&post.YoutubeVideoID, &metadata, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"media_urls", mediaURLs, &post.MediaURLs},
		{"platforms", platforms, &post.Platforms},
		{"thread_parts", threadParts, &post.ThreadParts},
		{"threads_chain_ids", chainIDs, &post.ThreadsChainIDs},
		{"metadata", metadata, &post.Metadata},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decoding %s for post %s: %w", col.name, post.ID, err)
		}
	}

	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 AND status != $2 ORDER BY created_at DESC`
	args := []interface{}{scope.UserID, models.PostStatusDeleted}
	if scope.TeamID.Valid {
		query = `SELECT ` + postColumns + ` FROM posts WHERE team_id = $1 AND status != $2 ORDER BY created_at DESC`
		args[0] = scope.TeamID.Int64
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckOwner(ctx context.Context, id string, scope models.Scope) (bool, error) {
	query := `SELECT 1 FROM posts WHERE id = $1 AND (user_id = $2 OR team_id = $3)`

	var result int
	err := r.db.QueryRowContext(ctx, query, id, scope.UserID, scope.TeamID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

// ClaimDue atomically moves up to limit due posts from scheduled to
// publishing and returns them. The conditional UPDATE ... RETURNING is
// the only mutual-exclusion mechanism between workers: a row claimed
// here is invisible to any concurrent claim.
func (r *postRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `
		UPDATE posts SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM posts
			WHERE status = $3 AND scheduled_for <= $2
			ORDER BY scheduled_for ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + postColumns

	var rows *sql.Rows
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		rows, err = r.db.QueryContext(ctx, query, models.PostStatusPublishing, now, models.PostStatusScheduled, limit)
		if err == nil || !IsTransient(err) {
			break
		}
		slog.Info("retrying claim after transient store error", "error", err)
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// RequeueStale returns publishing rows older than the lease cutoff to
// scheduled so a crashed worker's claims are eventually retried.
func (r *postRepository) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE posts SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, time.Now(), models.PostStatusPublishing, olderThan)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, status, id string) error {
	query := `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetExternalIDs(ctx context.Context, id string, ig, th, yt string, chain []string) error {
	chainIDs, _ := json.Marshal(chain)
	query := `
		UPDATE posts
		SET instagram_post_id = COALESCE(NULLIF($1, ''), instagram_post_id),
			threads_post_id = COALESCE(NULLIF($2, ''), threads_post_id),
			youtube_video_id = COALESCE(NULLIF($3, ''), youtube_video_id),
			threads_chain_ids = $4,
			updated_at = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query, ig, th, yt, chainIDs, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetThreadsRefs overwrites the Threads linkage unconditionally, used
// when remote deletion resolves previously recorded ids.
func (r *postRepository) SetThreadsRefs(ctx context.Context, id string, threadsPostID string, chain []string) error {
	chainIDs, _ := json.Marshal(chain)
	query := `UPDATE posts SET threads_post_id = $1, threads_chain_ids = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, threadsPostID, chainIDs, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPosted(ctx context.Context, id string, postedAt time.Time) error {
	query := `UPDATE posts SET status = $1, posted_at = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPosted, postedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateSchedule(ctx context.Context, id string, scheduledFor time.Time) error {
	query := `UPDATE posts SET status = $1, scheduled_for = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, scheduledFor, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateMetadata(ctx context.Context, id string, meta models.PostMetadata) error {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	query := `UPDATE posts SET metadata = $1, updated_at = $2 WHERE id = $3`
	_, err = r.db.ExecContext(ctx, query, metadata, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func IsTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08xxx: connection exceptions.
		return len(pqErr.Code) >= 2 && pqErr.Code[:2] == "08"
	}
	return errors.Is(err, sql.ErrConnDone)
}

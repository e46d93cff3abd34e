package models

import (
	"database/sql"
	"time"
)

type Post struct {
	ID              string         `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	TeamID          sql.NullInt64  `db:"team_id" json:"team_id,omitempty"`
	Caption         string         `db:"caption" json:"caption"`
	MediaURLs       []string       `db:"media_urls" json:"media_urls"`
	Platforms       []string       `db:"platforms" json:"platforms"`
	CrossPost       bool           `db:"cross_post" json:"cross_post"`
	InstagramType   string         `db:"instagram_type" json:"instagram_type,omitempty"`
	ThreadsType     string         `db:"threads_type" json:"threads_type,omitempty"`
	YoutubeType     string         `db:"youtube_type" json:"youtube_type,omitempty"`
	Title           string         `db:"title" json:"title,omitempty"`
	ThreadParts     []string       `db:"thread_parts" json:"thread_parts,omitempty"`
	ThreadsChainIDs []string       `db:"threads_chain_ids" json:"threads_chain_ids,omitempty"`
	Status          string         `db:"status" json:"status"`
	ScheduledFor    sql.NullTime   `db:"scheduled_for" json:"scheduled_for,omitempty"`
	PostedAt        sql.NullTime   `db:"posted_at" json:"posted_at,omitempty"`
	InstagramPostID string         `db:"instagram_post_id" json:"instagram_post_id,omitempty"`
	ThreadsPostID   string         `db:"threads_post_id" json:"threads_post_id,omitempty"`
	YoutubeVideoID  string         `db:"youtube_video_id" json:"youtube_video_id,omitempty"`
	Metadata        PostMetadata   `db:"metadata" json:"metadata"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPosted     = "posted"
	PostStatusFailed     = "failed"
	PostStatusDeleted    = "deleted"
)

const (
	PlatformInstagram = "instagram"
	PlatformThreads   = "threads"
	PlatformYoutube   = "youtube"
)

// PublishOrder is the fixed order platforms are attempted in.
var PublishOrder = []string{PlatformInstagram, PlatformThreads, PlatformYoutube}

func IsKnownPlatform(p string) bool {
	switch p {
	case PlatformInstagram, PlatformThreads, PlatformYoutube:
		return true
	}
	return false
}

// Instagram content types.
const (
	InstagramTypeFeed     = "feed"
	InstagramTypeCarousel = "carousel"
	InstagramTypeReel     = "reel"
	InstagramTypeStory    = "story"
)

// Threads content types.
const (
	ThreadsTypeText   = "text"
	ThreadsTypeImage  = "image"
	ThreadsTypeVideo  = "video"
	ThreadsTypeThread = "thread"
)

// Cross-post target outcomes recorded in the metadata sub-document.
const (
	CrossPostDisabled     = "disabled"
	CrossPostSkipped      = "skipped"
	CrossPostPosted       = "posted"
	CrossPostFailed       = "failed"
	CrossPostTimeout      = "timeout"
	CrossPostNotConnected = "not_connected"
)

type CrossPostTarget struct {
	Enabled    bool   `json:"enabled"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PostMetadata is the versioned JSON sub-document on the post row.
type PostMetadata struct {
	Version   int                        `json:"version"`
	CrossPost map[string]CrossPostTarget `json:"cross_post,omitempty"`
}

package transfer

import "github.com/golang-jwt/jwt/v5"

type PostCreation struct {
	Caption       string   `json:"caption"`
	Title         string   `json:"title"`
	MediaURLs     []string `json:"media_urls"`
	Platforms     []string `json:"platforms"`
	CrossPost     bool     `json:"cross_post"`
	InstagramType string   `json:"instagram_type"`
	ThreadsType   string   `json:"threads_type"`
	YoutubeType   string   `json:"youtube_type"`
	ThreadParts   []string `json:"thread_parts"`
	ScheduledFor  string   `json:"scheduled_for"`
}

type RescheduleRequest struct {
	PostID       string `json:"post_id"`
	ScheduledFor string `json:"scheduled_for"`
}

type PostActionRequest struct {
	PostID string `json:"post_id"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

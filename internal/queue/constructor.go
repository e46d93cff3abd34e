package queue

import (
	"github.com/publora/publora/internal/service"
)

type Queue struct {
	cp service.CrossPostService
}

func NewQueue(cp service.CrossPostService) *Queue {
	return &Queue{cp: cp}
}

const TaskTypeCrossPost = "crosspost:send"

type CrossPostPayload struct {
	PostID string `json:"post_id"`
}

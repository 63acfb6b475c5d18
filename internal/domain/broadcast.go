package domain

import (
	"context"
	"time"
)

// BroadcastJob содержит параметры одной массовой рассылки.
// Пустой список получателей означает «все известные пользователи».
type BroadcastJob struct {
	ID           string        `json:"job_id"`
	Message      string        `json:"message"`
	Recipients   []int64       `json:"recipients,omitempty"`
	BatchSize    int           `json:"batch_size,omitempty"`
	MessageDelay time.Duration `json:"message_delay,omitempty"`
	BatchDelay   time.Duration `json:"batch_delay,omitempty"`
	MaxRetries   int           `json:"max_retries,omitempty"`
	RequestedAt  time.Time     `json:"requested_at"`
}

// BroadcastResult — итог рассылки, возвращаемый вызывающей стороне.
type BroadcastResult struct {
	Total            int
	Sent             int
	Failed           int
	FailedRecipients []int64
	Errors           []string
	Duration         time.Duration
}

// BroadcastProgress передаётся в колбэк прогресса после каждого батча.
type BroadcastProgress struct {
	Sent         int
	Failed       int
	Batch        int
	TotalBatches int
	Elapsed      time.Duration
	Remaining    time.Duration
}

// BroadcastQueue описывает очередь задач на рассылку.
type BroadcastQueue interface {
	Enqueue(ctx context.Context, job BroadcastJob) error
	Pop(ctx context.Context) (BroadcastJob, error)
}

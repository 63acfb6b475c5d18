package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/ratelimit"
)

type stubQueue struct {
	jobs []domain.BroadcastJob
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.BroadcastJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Pop(context.Context) (domain.BroadcastJob, error) {
	return domain.BroadcastJob{}, nil
}

func newTestHandler(q *stubQueue) http.HandlerFunc {
	limiter := ratelimit.New(map[ratelimit.Action]ratelimit.Tier{
		ratelimit.ActionBroadcastAdmin: {MaxRequests: 2, Window: time.Minute},
	})
	return broadcastHandler(q, limiter, zerolog.Nop())
}

func postBroadcast(handler http.HandlerFunc, operator, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/broadcasts", strings.NewReader(body))
	if operator != "" {
		req.Header.Set("X-Operator-ID", operator)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestBroadcastAccepted(t *testing.T) {
	q := &stubQueue{}
	handler := newTestHandler(q)

	rec := postBroadcast(handler, "op1", `{"message":"всем привет","batch_delay":"2s","message_delay":"100ms"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.jobs) != 1 {
		t.Fatalf("задача должна попасть в очередь")
	}
	job := q.jobs[0]
	if job.BatchDelay != 2*time.Second || job.MessageDelay != 100*time.Millisecond {
		t.Fatalf("задержки должны разбираться из запроса: %+v", job)
	}
	if job.ID == "" {
		t.Fatalf("задаче должен присваиваться идентификатор")
	}
}

func TestBroadcastMalformedDelayRejected(t *testing.T) {
	q := &stubQueue{}
	handler := newTestHandler(q)

	rec := postBroadcast(handler, "op1", `{"message":"всем","batch_delay":"пять секунд"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("некорректная задержка — это 400, получили %d", rec.Code)
	}
	rec = postBroadcast(handler, "op1", `{"message":"всем","message_delay":"10"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("длительность без единиц — это 400, получили %d", rec.Code)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("отклонённые запросы не должны попадать в очередь")
	}
}

func TestBroadcastRequiresOperator(t *testing.T) {
	handler := newTestHandler(&stubQueue{})

	rec := postBroadcast(handler, "", `{"message":"всем"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("без X-Operator-ID ожидали 400, получили %d", rec.Code)
	}
}

func TestBroadcastEmptyMessageRejected(t *testing.T) {
	handler := newTestHandler(&stubQueue{})

	rec := postBroadcast(handler, "op1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("пустое сообщение — это 400, получили %d", rec.Code)
	}
}

func TestBroadcastOperatorRateLimited(t *testing.T) {
	handler := newTestHandler(&stubQueue{})

	postBroadcast(handler, "op1", `{"message":"раз"}`)
	postBroadcast(handler, "op1", `{"message":"два"}`)
	rec := postBroadcast(handler, "op1", `{"message":"три"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("третий запрос подряд должен упереться в лимит, получили %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("отказ лимитера должен сопровождаться заголовком Retry-After")
	}
}

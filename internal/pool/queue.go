package pool

import (
	"container/list"
	"time"

	"github.com/Rorqualx/crawlpool/internal/types"
)

// Kind selects which extractor operation a request runs.
type Kind string

const (
	KindDetail Kind = "detail-crawl"
	KindSearch Kind = "search"
)

// Request is one caller's pending job.
type Request struct {
	ID         string
	Kind       Kind
	Target     string // URL for KindDetail, keyword for KindSearch
	EnqueuedAt time.Time

	done chan result   // capacity 1, receives exactly one value
	elem *list.Element // position in the queue; nil once dequeued
}

type result struct {
	detail    *types.ProductDetail
	summaries []types.ProductSummary
	err       error
}

func newRequest(id string, kind Kind, target string) *Request {
	return &Request{
		ID:         id,
		Kind:       kind,
		Target:     target,
		EnqueuedAt: time.Now(),
		done:       make(chan result, 1),
	}
}

// requestQueue is an unbounded FIFO that also supports removing a request
// from the middle when its caller gives up. Not safe for concurrent use.
type requestQueue struct {
	items list.List
}

func (q *requestQueue) push(r *Request) {
	r.elem = q.items.PushBack(r)
}

func (q *requestQueue) pop() *Request {
	front := q.items.Front()
	if front == nil {
		return nil
	}
	q.items.Remove(front)
	r := front.Value.(*Request)
	r.elem = nil
	return r
}

// remove reports whether r was still queued.
func (q *requestQueue) remove(r *Request) bool {
	if r.elem == nil {
		return false
	}
	q.items.Remove(r.elem)
	r.elem = nil
	return true
}

func (q *requestQueue) len() int {
	return q.items.Len()
}

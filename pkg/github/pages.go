package github

import (
	"context"
	"io"
)

// Pages is a lazy stream over a paginated collection. Pages are fetched on
// demand through the cache, so a consumer that stops early never pays for
// the pages it did not read.
type Pages struct {
	client *Client
	first  string
	next   string
	closed bool
}

// Next fetches the next page. It returns io.EOF after the last page or once
// the stream is closed.
func (p *Pages) Next(ctx context.Context) (*Resource, error) {
	if p.closed || p.next == "" {
		return nil, io.EOF
	}
	res, err := p.client.get(ctx, p.next)
	if err != nil {
		return nil, err
	}
	p.next = res.NextURL()
	return res, nil
}

// Close stops the stream. Further calls to Next return io.EOF.
func (p *Pages) Close() {
	p.closed = true
	p.next = ""
}

// Reset rewinds the stream to its first page
func (p *Pages) Reset() {
	p.closed = false
	p.next = p.first
}

// Items is a lazy stream of decoded collection items
type Items[T any] struct {
	pages  *Pages
	buffer []T
}

// NewItems wraps pages whose bodies are JSON arrays of T
func NewItems[T any](pages *Pages) *Items[T] {
	return &Items[T]{pages: pages}
}

// Next returns the next item, fetching a page when the buffer runs dry.
// It returns io.EOF at the end of the collection.
func (it *Items[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for len(it.buffer) == 0 {
		res, err := it.pages.Next(ctx)
		if err != nil {
			return zero, err
		}
		var batch []T
		if err := res.Decode(&batch); err != nil {
			return zero, err
		}
		it.buffer = batch
	}
	item := it.buffer[0]
	it.buffer = it.buffer[1:]
	return item, nil
}

// Close stops the stream
func (it *Items[T]) Close() {
	it.buffer = nil
	it.pages.Close()
}

// Collect reads up to limit items, or every item when limit is zero.
func Collect[T any](ctx context.Context, it *Items[T], limit int) ([]T, error) {
	var out []T
	for limit <= 0 || len(out) < limit {
		item, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

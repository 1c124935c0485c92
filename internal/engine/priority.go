package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/logger"
)

// StreamSource produces the head streams of one repository. The opener is
// called at most once, when the round-robin first reaches the repository.
type StreamSource struct {
	Repository *repository.Repository
	Open       func() []repository.HeadStream
}

// HeadPrioritizer yields the heads of many repositories as one lazy
// sequence. Within a repository the streams are merged by SortKey;
// repositories take turns, one head each per round.
type HeadPrioritizer struct {
	repos  []*repoCursor
	pos    int
	seen   map[string]bool
	logger logger.Logger
}

type repoCursor struct {
	source StreamSource
	merged *mergedStream
	done   bool
}

// NewHeadPrioritizer creates a prioritizer over the given sources, in
// round-robin order
func NewHeadPrioritizer(sources []StreamSource, log logger.Logger) *HeadPrioritizer {
	if log == nil {
		log = logger.Nop()
	}
	repos := make([]*repoCursor, 0, len(sources))
	for _, source := range sources {
		repos = append(repos, &repoCursor{source: source})
	}
	return &HeadPrioritizer{repos: repos, seen: make(map[string]bool), logger: log}
}

// Next returns the next head, or io.EOF once every repository is
// exhausted. A stream error drops its repository for the rest of the
// sequence and is returned; calling Next again continues with the others.
func (p *HeadPrioritizer) Next(ctx context.Context) (repository.Head, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cursor := p.current()
		if cursor == nil {
			return nil, io.EOF
		}

		if cursor.merged == nil {
			p.logger.Debug("Opening repository streams",
				logger.WithField("repository", cursor.source.Repository.String()))
			cursor.merged = newMergedStream(cursor.source.Open())
		}

		head, err := cursor.merged.Next(ctx)
		if errors.Is(err, io.EOF) {
			cursor.done = true
			cursor.merged.Close()
			continue
		}
		if err != nil {
			cursor.done = true
			cursor.merged.Close()
			p.advance()
			return nil, fmt.Errorf("%s: %w", cursor.source.Repository, err)
		}

		id := repository.HeadID(head)
		if p.seen[id] {
			p.logger.Debug("Skipping duplicate head", logger.WithField("head", head.String()))
			continue
		}
		p.seen[id] = true
		p.advance()
		return head, nil
	}
}

// current returns the cursor whose turn it is, skipping exhausted ones
func (p *HeadPrioritizer) current() *repoCursor {
	for range p.repos {
		if p.pos >= len(p.repos) {
			p.pos = 0
		}
		cursor := p.repos[p.pos]
		if !cursor.done {
			return cursor
		}
		p.pos++
	}
	return nil
}

func (p *HeadPrioritizer) advance() {
	p.pos++
	if p.pos >= len(p.repos) {
		p.pos = 0
	}
}

// Close releases every opened stream not yet exhausted. Repositories
// never reached are not opened.
func (p *HeadPrioritizer) Close() {
	for _, cursor := range p.repos {
		if cursor.merged != nil && !cursor.done {
			cursor.merged.Close()
		}
		cursor.done = true
	}
}

// mergedStream merges sorted streams into one sorted stream
type mergedStream struct {
	streams []repository.HeadStream
	peeked  []repository.Head
	done    []bool
}

func newMergedStream(streams []repository.HeadStream) *mergedStream {
	return &mergedStream{
		streams: streams,
		peeked:  make([]repository.Head, len(streams)),
		done:    make([]bool, len(streams)),
	}
}

func (m *mergedStream) Next(ctx context.Context) (repository.Head, error) {
	best := -1
	for i, stream := range m.streams {
		if m.done[i] {
			continue
		}
		if m.peeked[i] == nil {
			head, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				m.done[i] = true
				continue
			}
			if err != nil {
				return nil, err
			}
			m.peeked[i] = head
		}
		if best < 0 || m.peeked[i].SortKey().Less(m.peeked[best].SortKey()) {
			best = i
		}
	}
	if best < 0 {
		return nil, io.EOF
	}
	head := m.peeked[best]
	m.peeked[best] = nil
	return head, nil
}

func (m *mergedStream) Close() {
	for i, stream := range m.streams {
		if !m.done[i] {
			stream.Close()
			m.done[i] = true
		}
	}
}

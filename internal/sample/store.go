package sample

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Store is an in-memory catalog of books and authors. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	authors  map[uuid.UUID]*Author
	books    []*Book
	watchers map[chan *Book]struct{}
	now      func() time.Time
}

// Seed identifiers, stable across runs.
var (
	HerbertID = uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	DarwinID  = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	DuneID    = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	OriginID  = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

// NewStore returns a store holding two authors and one book each.
func NewStore() *Store {
	s := &Store{
		authors:  make(map[uuid.UUID]*Author),
		watchers: make(map[chan *Book]struct{}),
		now:      time.Now,
	}
	s.authors[HerbertID] = &Author{ID: HerbertID, Name: "Frank Herbert", store: s}
	s.authors[DarwinID] = &Author{ID: DarwinID, Name: "Charles Darwin", store: s}
	s.books = []*Book{
		{
			ID:        DuneID,
			Title:     "Dune",
			Genre:     GenreFiction,
			Tags:      []string{"desert", "politics"},
			Price:     9.99,
			Published: time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC),
			Updated:   timestamppb.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
			authorID:  HerbertID,
			store:     s,
		},
		{
			ID:        OriginID,
			Title:     "On the Origin of Species",
			Genre:     GenreScience,
			Price:     14.5,
			Published: time.Date(1859, 11, 24, 0, 0, 0, 0, time.UTC),
			authorID:  DarwinID,
			store:     s,
		},
	}
	return s
}

func (s *Store) author(id uuid.UUID) (*Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[id]
	return a, ok
}

func (s *Store) authorList() []*Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Author, 0, len(s.authors))
	for _, a := range s.authors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) find(match func(*Book) bool) []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Book
	for _, b := range s.books {
		if match(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s *Store) add(in NewBook) (*Book, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	if in.Price < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[in.AuthorID]; !ok {
		return nil, fmt.Errorf("author %s not found", in.AuthorID)
	}
	now := s.now()
	b := &Book{
		ID:        uuid.New(),
		Title:     in.Title,
		Genre:     in.Genre,
		Tags:      in.Tags,
		Price:     in.Price,
		Published: now.UTC(),
		Updated:   timestamppb.New(now),
		authorID:  in.AuthorID,
		store:     s,
	}
	s.books = append(s.books, b)
	for ch := range s.watchers {
		select {
		case ch <- b:
		default:
		}
	}
	return b, nil
}

// watch delivers every book added until ctx is done. Slow receivers miss
// books rather than blocking writers.
func (s *Store) watch(ctx context.Context) <-chan *Book {
	ch := make(chan *Book, 16)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Package sample is a small bookstore exposed through the graph: plain
// struct fields, resolver methods with arguments and context, async
// results, an input object, a protobuf Timestamp and a channel-backed
// subscription.
package sample

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type Genre string

const (
	GenreFiction Genre = "FICTION"
	GenreHistory Genre = "HISTORY"
	GenreScience Genre = "SCIENCE"
)

func (Genre) EnumValues() []string {
	return []string{string(GenreFiction), string(GenreHistory), string(GenreScience)}
}

func (Genre) GraphQLDescription() string { return "Shelf a book is filed under." }

type Author struct {
	ID   uuid.UUID `graphql:"id"`
	Name string

	store *Store
}

// Books lists the author's books in catalog order.
func (a *Author) Books(ctx context.Context) ([]*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.store.find(func(b *Book) bool { return b.authorID == a.ID }), nil
}

type Book struct {
	ID        uuid.UUID `graphql:"id"`
	Title     string
	Genre     Genre
	Tags      []string
	Price     float64 `description:"Price in euros."`
	Published time.Time
	Updated   *timestamppb.Timestamp `description:"Last catalog change."`

	authorID uuid.UUID
	store    *Store
}

// Author is loaded lazily.
func (b *Book) Author() func() (*Author, error) {
	return func() (*Author, error) {
		a, ok := b.store.author(b.authorID)
		if !ok {
			return nil, fmt.Errorf("author %s not found", b.authorID)
		}
		return a, nil
	}
}

type BooksArgs struct {
	Genre *Genre
	First *int32 `description:"Maximum number of books to return."`
}

type BookArgs struct {
	ID uuid.UUID `graphql:"id"`
}

type Query struct {
	store *Store
}

func (q *Query) Books(ctx context.Context, args BooksArgs) ([]*Book, error) {
	if args.First != nil && *args.First < 0 {
		return nil, fmt.Errorf("first must not be negative")
	}
	out := q.store.find(func(b *Book) bool {
		return args.Genre == nil || b.Genre == *args.Genre
	})
	if args.First != nil && int(*args.First) < len(out) {
		out = out[:*args.First]
	}
	return out, ctx.Err()
}

func (q *Query) Book(args BookArgs) *Book {
	books := q.store.find(func(b *Book) bool { return b.ID == args.ID })
	if len(books) == 0 {
		return nil
	}
	return books[0]
}

func (q *Query) Authors() []*Author {
	return q.store.authorList()
}

type NewBook struct {
	Title    string
	Genre    Genre
	AuthorID uuid.UUID `graphql:"authorId"`
	Tags     []string
	Price    float64
}

type AddBookArgs struct {
	Input NewBook
}

type Mutation struct {
	store *Store
}

func (m *Mutation) AddBook(args AddBookArgs) (*Book, error) {
	return m.store.add(args.Input)
}

type BookAddedArgs struct {
	Genre *Genre
}

type Subscription struct {
	store *Store
}

// BookAdded streams books as they are added.
func (s *Subscription) BookAdded(ctx context.Context, args BookAddedArgs) <-chan *Book {
	in := s.store.watch(ctx)
	if args.Genre == nil {
		return in
	}
	out := make(chan *Book)
	go func() {
		defer close(out)
		for b := range in {
			if b.Genre != *args.Genre {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Types returns the native types of the operation roots.
func Types() (query, mutation, subscription reflect.Type) {
	return reflect.TypeOf(Query{}), reflect.TypeOf(Mutation{}), reflect.TypeOf(Subscription{})
}

// Roots returns root values bound to store, keyed by root object name.
func Roots(store *Store) map[string]any {
	return map[string]any{
		"Query":        &Query{store: store},
		"Mutation":     &Mutation{store: store},
		"Subscription": &Subscription{store: store},
	}
}

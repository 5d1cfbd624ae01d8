// Package memory implements the repositories.Store ports in process memory.
// It backs STORE=memory deployments and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BradenHooton/bookswap/internal/models"
	"github.com/BradenHooton/bookswap/internal/repositories"
)

type dataset struct {
	users  map[string]models.User
	emails map[string]string // lower-cased email -> user ID
	books  map[string]models.Book
	swaps  map[string]models.SwapRequest
	seq    map[string]int64 // insertion order, breaks created_at ties
	next   int64
}

func newDataset() *dataset {
	return &dataset{
		users:  make(map[string]models.User),
		emails: make(map[string]string),
		books:  make(map[string]models.Book),
		swaps:  make(map[string]models.SwapRequest),
		seq:    make(map[string]int64),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		users:  make(map[string]models.User, len(d.users)),
		emails: make(map[string]string, len(d.emails)),
		books:  make(map[string]models.Book, len(d.books)),
		swaps:  make(map[string]models.SwapRequest, len(d.swaps)),
		seq:    make(map[string]int64, len(d.seq)),
		next:   d.next,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	for k, v := range d.books {
		c.books[k] = v
	}
	for k, v := range d.swaps {
		c.swaps[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	return c
}

func (d *dataset) track(id string) {
	d.next++
	d.seq[id] = d.next
}

// newestFirst orders ids by created_at descending, then by insertion order descending.
func (d *dataset) newestFirst(ids []string, createdAt func(id string) int64) {
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := createdAt(ids[i]), createdAt(ids[j])
		if ci != cj {
			return ci > cj
		}
		return d.seq[ids[i]] > d.seq[ids[j]]
	})
}

type root struct {
	mu   sync.RWMutex
	data *dataset
}

// Store keeps every record in process memory. A transaction holds the store's
// single write lock for its whole duration and works on a copy of the data
// that replaces the live data only when the transaction succeeds.
type Store struct {
	root *root
	tx   *dataset
}

func NewStore() *Store {
	return &Store{root: &root{data: newDataset()}}
}

func (s *Store) Users() repositories.UserRepository {
	return &userRepo{s: s}
}

func (s *Store) Books() repositories.BookRepository {
	return &bookRepo{s: s}
}

func (s *Store) Swaps() repositories.SwapRepository {
	return &swapRepo{s: s}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	snapshot := s.root.data.clone()
	if err := fn(&Store{root: s.root, tx: snapshot}); err != nil {
		return err
	}
	s.root.data = snapshot
	return nil
}

func (s *Store) read(fn func(d *dataset) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return fn(s.root.data)
}

func (s *Store) write(fn func(d *dataset) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.data)
}

var _ repositories.Store = (*Store)(nil)

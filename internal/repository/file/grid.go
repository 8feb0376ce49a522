package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// GridStore is a file implementation of repository.GridRepository. Cells
// and the processed-trip ledger share one JSON document, so a trip's
// updates and its ledger entry land in the same atomic replace.
type GridStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewGridStore creates a grid store backed by the document at path.
func NewGridStore(path string) *GridStore {
	return &GridStore{path: path, now: time.Now}
}

type gridMeta struct {
	UpdatedAt time.Time `json:"updated_at"`
	Trips     int       `json:"trips"`
}

type gridDocument struct {
	Meta      gridMeta                    `json:"meta"`
	Processed []string                    `json:"processed"`
	Pickup    map[string]*domain.GridCell `json:"pickup"`
	Dropoff   map[string]*domain.GridCell `json:"dropoff"`
}

func (d *gridDocument) cells(kind domain.ZoneKind) map[string]*domain.GridCell {
	if kind == domain.ZoneKindPickup {
		return d.Pickup
	}
	return d.Dropoff
}

func (d *gridDocument) processed(tripID string) bool {
	for _, id := range d.Processed {
		if id == tripID {
			return true
		}
	}
	return false
}

// Apply folds the samples of one trip into their cells.
func (g *GridStore) Apply(ctx context.Context, tripID string, samples []domain.ZoneSample) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, err := g.load()
	if err != nil {
		return false, err
	}
	if doc.processed(tripID) {
		return false, nil
	}

	for _, s := range samples {
		if !s.Kind.Valid() {
			return false, fmt.Errorf("invalid zone kind %q", s.Kind)
		}
		cells := doc.cells(s.Kind)
		cell, ok := cells[s.Zone]
		if !ok {
			cell = domain.NewGridCell(s.Kind, s.Zone, s.Group)
			cells[s.Zone] = cell
		}
		cell.Observe(s)
	}

	doc.Processed = append(doc.Processed, tripID)
	doc.Meta.UpdatedAt = g.now()
	doc.Meta.Trips = len(doc.Processed)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode grid: %w", err)
	}
	if err := writeAtomic(g.path, data); err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves one cell.
func (g *GridStore) Get(ctx context.Context, kind domain.ZoneKind, zone string) (*domain.GridCell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, err := g.load()
	if err != nil {
		return nil, err
	}
	cell, ok := doc.cells(kind)[zone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cell, nil
}

// List returns every cell of one side, sorted by zone key.
func (g *GridStore) List(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, err := g.load()
	if err != nil {
		return nil, err
	}

	cells := make([]*domain.GridCell, 0, len(doc.cells(kind)))
	for _, c := range doc.cells(kind) {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Zone < cells[j].Zone })
	return cells, nil
}

func (g *GridStore) load() (*gridDocument, error) {
	doc := &gridDocument{
		Pickup:  make(map[string]*domain.GridCell),
		Dropoff: make(map[string]*domain.GridCell),
	}

	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grid: %w", err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode grid: %w", err)
	}
	if doc.Pickup == nil {
		doc.Pickup = make(map[string]*domain.GridCell)
	}
	if doc.Dropoff == nil {
		doc.Dropoff = make(map[string]*domain.GridCell)
	}
	return doc, nil
}

var _ repository.GridRepository = (*GridStore)(nil)

package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Memory é um Store em memória, usado em desenvolvimento (DOCSTORE=memory)
// e nos testes. Os documentos ficam serializados em BSON, então leituras
// nunca compartilham estado com o chamador.
type Memory struct {
	mu       sync.RWMutex
	colls    map[string]map[string]bson.Raw
	watchers map[string]map[uint64]*memWatcher
	nextID   uint64
}

type memWatcher struct {
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMemory cria um Store vazio.
func NewMemory() *Memory {
	return &Memory{
		colls:    make(map[string]map[string]bson.Raw),
		watchers: make(map[string]map[uint64]*memWatcher),
	}
}

// Get lê um documento.
func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.colls[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{ID: id, Data: raw}, nil
}

// Query filtra por igualdade, ordena por OrderBy (desempate pelo id) e
// devolve os registros estritamente depois de After.
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	records := make([]Record, 0, len(m.colls[collection]))
	for id, raw := range m.colls[collection] {
		r := Record{ID: id, Data: raw}
		if matches(r, q.Where) {
			records = append(records, r)
		}
	}
	m.mu.RUnlock()

	cmp := func(a Record, bValue any, bID string) int {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(a.Value(q.OrderBy), bValue)
		}
		if c == 0 {
			c = compareValues(a.ID, bID)
		}
		if q.Desc {
			c = -c
		}
		return c
	}
	sort.Slice(records, func(i, j int) bool {
		var v any
		if q.OrderBy != "" {
			v = records[j].Value(q.OrderBy)
		}
		return cmp(records[i], v, records[j].ID) < 0
	})

	if q.After != nil {
		start := len(records)
		for i, r := range records {
			if cmp(r, q.After.Value, q.After.ID) > 0 {
				start = i
				break
			}
		}
		records = records[start:]
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

func matches(r Record, where []Filter) bool {
	for _, f := range where {
		v := r.Value(f.Field)
		if compareValues(v, f.Value) != 0 || typeOrder(normalize(v)) != typeOrder(normalize(f.Value)) {
			return false
		}
	}
	return true
}

// Subscribe entrega snapshots completos numa goroutine própria. Mudanças
// próximas podem ser coalescidas num único snapshot.
func (m *Memory) Subscribe(collection string, fn func(Snapshot), onErr func(error)) (func(), error) {
	w := &memWatcher{notify: make(chan struct{}, 1), done: make(chan struct{})}
	w.notify <- struct{}{}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[uint64]*memWatcher)
	}
	m.watchers[collection][id] = w
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-w.done:
				return
			case <-w.notify:
			}
			snap := m.snapshot(collection)
			select {
			case <-w.done:
				return
			default:
			}
			fn(snap)
		}
	}()

	return func() {
		w.once.Do(func() {
			close(w.done)
			m.mu.Lock()
			delete(m.watchers[collection], id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) snapshot(collection string) Snapshot {
	m.mu.RLock()
	records := make([]Record, 0, len(m.colls[collection]))
	for id, raw := range m.colls[collection] {
		records = append(records, Record{ID: id, Data: raw})
	}
	m.mu.RUnlock()
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return Snapshot{Records: records}
}

// changed deve ser chamado com m.mu travado.
func (m *Memory) changed(collection string) {
	for _, w := range m.watchers[collection] {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

// Set cria ou substitui o documento id.
func (m *Memory) Set(ctx context.Context, collection, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encode(doc, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colls[collection] == nil {
		m.colls[collection] = make(map[string]bson.Raw)
	}
	m.colls[collection][id] = raw
	m.changed(collection)
	return nil
}

// Add grava doc com um id novo e devolve o id.
func (m *Memory) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := m.Set(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Update grava somente os campos informados. Documento inexistente é erro.
func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.colls[collection][id]
	if !ok {
		return ErrNotFound
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("atualizar %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		replaced := false
		for i := range d {
			if d[i].Key == k {
				d[i].Value = v
				replaced = true
				break
			}
		}
		if !replaced {
			d = append(d, bson.E{Key: k, Value: v})
		}
	}
	updated, err := bson.Marshal(d)
	if err != nil {
		return fmt.Errorf("atualizar %s/%s: %w", collection, id, err)
	}
	m.colls[collection][id] = updated
	m.changed(collection)
	return nil
}

// Delete remove o documento.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.colls[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.colls[collection], id)
	m.changed(collection)
	return nil
}

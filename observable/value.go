// Package observable fornece um valor observável: quem assina recebe o
// valor atual e cada substituição posterior, sempre em ordem.
package observable

import (
	"sync"
	"sync/atomic"
)

// Value guarda um valor do tipo T e notifica assinantes a cada Set.
//
// As entregas são serializadas e monotônicas: um assinante nunca recebe um
// valor mais antigo depois de um mais novo. Sets concorrentes podem ser
// coalescidos, e o assinante recebe apenas o mais recente.
// Callbacks não devem chamar Set nem Subscribe no mesmo Value.
type Value[T any] struct {
	mu      sync.Mutex
	cur     T
	version uint64
	subs    map[uint64]*subscriber[T]
	nextID  uint64

	deliverMu sync.Mutex
	delivered uint64
}

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// New cria um Value com o valor inicial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[uint64]*subscriber[T])}
}

// Get devolve o valor atual.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set substitui o valor e notifica os assinantes.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	v.cur = x
	v.version++
	v.mu.Unlock()
	v.flush()
}

// Update aplica fn ao valor atual de forma atômica e notifica.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	v.cur = fn(v.cur)
	v.version++
	v.mu.Unlock()
	v.flush()
}

func (v *Value[T]) flush() {
	v.deliverMu.Lock()
	defer v.deliverMu.Unlock()

	v.mu.Lock()
	if v.version == v.delivered {
		v.mu.Unlock()
		return
	}
	cur, ver := v.cur, v.version
	subs := make([]*subscriber[T], 0, len(v.subs))
	for _, s := range v.subs {
		subs = append(subs, s)
	}
	v.mu.Unlock()

	v.delivered = ver
	for _, s := range subs {
		if s.active.Load() {
			s.fn(cur)
		}
	}
}

// Subscribe registra fn, entrega o valor atual imediatamente e devolve a
// função de cancelamento. Depois do cancelamento pode ocorrer no máximo uma
// entrega que já estava em andamento.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	s := &subscriber[T]{fn: fn}
	s.active.Store(true)

	v.deliverMu.Lock()
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = s
	cur := v.cur
	v.mu.Unlock()
	fn(cur)
	v.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Subscribers devolve quantos assinantes ativos existem.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

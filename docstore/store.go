// Package docstore define o repositório de documentos usado pelo núcleo da
// aplicação e suas implementações: memória, MongoDB e cache Redis.
//
// Documentos trafegam como BSON cru (Record) e são decodificados pelos
// chamadores nos modelos de apoioufu/models.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound indica documento inexistente.
var ErrNotFound = errors.New("documento não encontrado")

// Fields é uma atualização parcial: somente as chaves presentes são gravadas.
type Fields map[string]any

// Record é um documento lido do repositório.
type Record struct {
	ID   string
	Data bson.Raw
}

// Decode decodifica o documento em v.
func (r Record) Decode(v any) error {
	if err := bson.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decodificar %s: %w", r.ID, err)
	}
	return nil
}

// Value devolve o valor Go de um campo de topo, ou nil se ausente.
func (r Record) Value(field string) any {
	if field == "_id" {
		return r.ID
	}
	rv, err := r.Data.LookupErr(field)
	if err != nil {
		return nil
	}
	return rawToGo(rv)
}

// Filter é uma condição de igualdade sobre um campo.
type Filter struct {
	Field string
	Value any
}

// Where cria um Filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Cursor marca o último registro de uma página: o valor do campo de
// ordenação e o id, usado como desempate.
type Cursor struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// CursorAt cria o cursor para o registro r ordenado por field.
func CursorAt(r Record, field string) *Cursor {
	return &Cursor{ID: r.ID, Value: r.Value(field)}
}

// Query descreve uma consulta ordenada e paginada.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	After   *Cursor
	Limit   int
}

// Snapshot é o conjunto completo de documentos de uma coleção num instante.
type Snapshot struct {
	Records []Record
}

// Store é o contrato do repositório de documentos.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Query(ctx context.Context, collection string, q Query) ([]Record, error)
	// Subscribe entrega o snapshot atual e, a cada mudança na coleção, o
	// snapshot completo novamente. onErr recebe falhas da assinatura, que
	// encerram a entrega.
	Subscribe(collection string, fn func(Snapshot), onErr func(error)) (cancel func(), err error)
	Set(ctx context.Context, collection, id string, doc any) error
	Add(ctx context.Context, collection string, doc any) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
}

// encode serializa doc com _id = id na primeira posição.
func encode(doc any, id string) (bson.Raw, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializar documento: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("serializar documento: %w", err)
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range d {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return bson.Marshal(out)
}

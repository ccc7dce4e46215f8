// Package feed pagina as notícias publicadas, das mais recentes para as
// mais antigas, e mantém a lista acumulada de uma conexão.
package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"apoioufu/docstore"
	"apoioufu/models"
)

// DefaultPageSize é o tamanho de página do feed.
const DefaultPageSize = 8

// ErrBadCursor indica cursor de paginação ilegível.
var ErrBadCursor = errors.New("cursor inválido")

// Source consulta a coleção de notícias.
type Source interface {
	Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Record, error)
}

// Page é uma página do feed.
type Page struct {
	Articles []models.Article
	Next     *docstore.Cursor
	HasMore  bool
}

// FetchPage busca até size notícias publicadas estritamente depois de after.
// HasMore é falso quando a página vem incompleta.
func FetchPage(ctx context.Context, src Source, after *docstore.Cursor, size int) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	recs, err := src.Query(ctx, models.ArticlesCollection, docstore.Query{
		Where:   []docstore.Filter{docstore.Where("status", models.StatusPublished)},
		OrderBy: "dataCriacao",
		Desc:    true,
		After:   after,
		Limit:   size,
	})
	if err != nil {
		return Page{}, fmt.Errorf("buscar notícias: %w", err)
	}
	page := Page{Articles: make([]models.Article, 0, len(recs)), HasMore: len(recs) == size}
	for _, rec := range recs {
		var a models.Article
		if err := rec.Decode(&a); err != nil {
			return Page{}, err
		}
		page.Articles = append(page.Articles, a)
	}
	if len(recs) > 0 {
		page.Next = docstore.CursorAt(recs[len(recs)-1], "dataCriacao")
	}
	return page, nil
}

type wireCursor struct {
	ID   string    `json:"id"`
	Time time.Time `json:"t"`
}

// EncodeCursor serializa o cursor para uso em URL.
func EncodeCursor(c *docstore.Cursor) string {
	if c == nil {
		return ""
	}
	t, _ := c.Value.(time.Time)
	raw, _ := json.Marshal(wireCursor{ID: c.ID, Time: t})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor é o inverso de EncodeCursor; string vazia devolve nil.
func DecodeCursor(s string) (*docstore.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadCursor
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
		return nil, ErrBadCursor
	}
	return &docstore.Cursor{ID: w.ID, Value: w.Time.UTC()}, nil
}

package models

import (
	"time"
)

// ArticleStatus controla a visibilidade pública de uma notícia.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusPublished ArticleStatus = "published"
)

// Article é uma notícia da coleção "noticias".
type Article struct {
	ID              string        `bson:"_id,omitempty" json:"id"`
	Titulo          string        `bson:"titulo" json:"titulo"`
	Resumo          string        `bson:"resumo" json:"resumo"`
	Conteudo        string        `bson:"conteudo,omitempty" json:"conteudo,omitempty"`
	Autor           string        `bson:"autor,omitempty" json:"autor,omitempty"`
	AutorID         string        `bson:"autorId,omitempty" json:"autorId,omitempty"`
	Tag             string        `bson:"tag,omitempty" json:"tag,omitempty"`
	Imagem          string        `bson:"imagem,omitempty" json:"imagem,omitempty"`
	Slug            string        `bson:"slug" json:"slug"`
	Status          ArticleStatus `bson:"status" json:"status"`
	DataCriacao     time.Time     `bson:"dataCriacao" json:"dataCriacao"`
	DataAtualizacao *time.Time    `bson:"dataAtualizacao,omitempty" json:"dataAtualizacao,omitempty"`
}

// Published informa se a notícia está visível ao público.
func (a *Article) Published() bool {
	return a.Status == StatusPublished
}

// TagOrDefault devolve a tag ou "Sem Tag".
func (a *Article) TagOrDefault() string {
	if a.Tag == "" {
		return "Sem Tag"
	}
	return a.Tag
}

// AuthorOrDefault devolve o autor ou "Autor Desconhecido".
func (a *Article) AuthorOrDefault() string {
	if a.Autor == "" {
		return "Autor Desconhecido"
	}
	return a.Autor
}

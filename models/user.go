package models

import (
	"strings"
	"time"
)

// Role é o nível de autorização de um perfil.
// Ordem de privilégio: sem_autorizacao < escritor < admin.
type Role string

const (
	RoleNone   Role = "sem_autorizacao"
	RoleWriter Role = "escritor"
	RoleAdmin  Role = "admin"
)

// Roles lista os papéis conhecidos do menor para o maior privilégio.
var Roles = []Role{RoleNone, RoleWriter, RoleAdmin}

// Valid informa se o papel é um dos valores conhecidos.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Profile é o registro estendido de um usuário, guardado na coleção "users"
// com o uid do provedor de identidade como id do documento.
type Profile struct {
	ID               string `bson:"_id,omitempty" json:"id"`
	Nome             string `bson:"nome" json:"nome"`
	Sobrenome        string `bson:"sobrenome" json:"sobrenome"`
	Email            string `bson:"email" json:"email"`
	NivelAutorizacao Role   `bson:"nivel_autorizacao" json:"nivel_autorizacao"`
}

// FullName monta "nome sobrenome", caindo para "Usuário" quando não há nome.
func (p *Profile) FullName() string {
	if p == nil || strings.TrimSpace(p.Nome) == "" {
		return "Usuário"
	}
	if p.Sobrenome == "" {
		return p.Nome
	}
	return p.Nome + " " + p.Sobrenome
}

// Account é a credencial guardada pelo provedor de identidade.
// Nunca é exposta pela API.
type Account struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// Collection names.
const (
	UsersCollection    = "users"
	AccountsCollection = "accounts"
	ArticlesCollection = "noticias"
)

// Package authz concentra as regras de autorização: a ordem total entre
// papéis e as verificações por ação usadas pelos handlers.
package authz

import (
	"errors"
	"strings"

	"apoioufu/models"
)

var (
	// ErrForbidden indica papel insuficiente para a ação.
	ErrForbidden = errors.New("acesso negado")
	// ErrSelfEdit impede que um administrador altere o próprio perfil.
	ErrSelfEdit = errors.New("não é permitido editar o próprio perfil")
	// ErrImmutableAccount protege as contas semente.
	ErrImmutableAccount = errors.New("conta protegida não pode ser editada")
)

// DefaultSeedEmails são as contas que nunca aparecem como editáveis.
var DefaultSeedEmails = []string{"admin@apoioufu.com"}

// Rank devolve a posição do papel na ordem de privilégio.
// Papéis desconhecidos ficam abaixo de todos (-1).
func Rank(r models.Role) int {
	for i, known := range models.Roles {
		if r == known {
			return i
		}
	}
	return -1
}

// IsAuthorized compara o papel do perfil com o papel exigido.
// Papel exigido vazio sempre autoriza; papel do perfil vazio nunca autoriza
// uma exigência. Um papel exigido desconhecido nega.
func IsAuthorized(profileRole, requiredRole models.Role) bool {
	if requiredRole == "" {
		return true
	}
	if profileRole == "" {
		return false
	}
	need := Rank(requiredRole)
	have := Rank(profileRole)
	if need < 0 || have < 0 {
		return false
	}
	return have >= need
}

// Actor é quem executa uma ação: uid da identidade e papel do perfil.
// Role vazio significa perfil ausente.
type Actor struct {
	UID  string
	Role models.Role
	Name string
}

// Authenticated informa se há uma identidade por trás do ator.
func (a Actor) Authenticated() bool {
	return a.UID != ""
}

// IsAdmin informa se o ator é administrador.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanEditProfile valida a edição de um perfil pelo roster: só administradores,
// nunca o próprio perfil e nunca uma conta semente.
func CanEditProfile(actor Actor, target models.Profile, seedEmails []string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if actor.UID == target.ID {
		return ErrSelfEdit
	}
	if IsSeedAccount(target.Email, seedEmails) {
		return ErrImmutableAccount
	}
	return nil
}

// IsSeedAccount compara o email com a lista de contas semente sem diferenciar caixa.
func IsSeedAccount(email string, seedEmails []string) bool {
	for _, seed := range seedEmails {
		if strings.EqualFold(strings.TrimSpace(email), seed) {
			return true
		}
	}
	return false
}

// CanViewArticle: publicada, ou o ator é admin, ou é o autor.
func CanViewArticle(actor Actor, a *models.Article) bool {
	if a.Published() {
		return true
	}
	return actor.IsAdmin() || (actor.Authenticated() && a.AutorID == actor.UID)
}

// CanEditArticle: admin ou autor.
func CanEditArticle(actor Actor, a *models.Article) bool {
	return actor.IsAdmin() || (actor.Authenticated() && a.AutorID == actor.UID)
}

// CanDeleteArticle: somente admin.
func CanDeleteArticle(actor Actor) bool {
	return actor.IsAdmin()
}

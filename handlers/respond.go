package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/authz"
	"apoioufu/docstore"
	"apoioufu/identity"
	"apoioufu/services"
)

// respondError traduz erros de domínio em status HTTP. Erros inesperados
// são registrados e respondidos com mensagem genérica.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "você não tem permissão para esta ação"})
	case errors.Is(err, authz.ErrSelfEdit), errors.Is(err, authz.ErrImmutableAccount):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrArticleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Notícia não encontrada."})
	case errors.Is(err, docstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "registro não encontrado"})
	case errors.Is(err, identity.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("falha na requisição")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "erro interno, tente novamente"})
	}
}

package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"apoioufu/identity"
	"apoioufu/models"
)

var isValidURL = regexp.MustCompile(`^https?://[\w\d\-\.]+(?::\d+)?(?:/[\w\d\-\._~:/?#\[\]@!$&'()*+,;=%]*)?$`)

// RegisterCustomValidators registra as validações usadas nos formulários.
func RegisterCustomValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerOn(v)
	}
}

func registerOn(v *validator.Validate) {
	_ = v.RegisterValidation("validurl", func(fl validator.FieldLevel) bool {
		return isValidURL.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("articlestatus", func(fl validator.FieldLevel) bool {
		s := models.ArticleStatus(fl.Field().String())
		return s == models.StatusDraft || s == models.StatusPublished
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return identity.CheckPasswordStrength(fl.Field().String()) == nil
	})
}

// BindJSON decodifica e valida o corpo. Em caso de erro responde 400 com as
// mensagens por campo e devolve false.
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "dados inválidos",
			"details": ValidationMessages(err),
		})
		return false
	}
	return true
}

// ValidationMessages traduz os erros do validator.
func ValidationMessages(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{"formato da requisição inválido"}
	}
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		field := getFieldName(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" é obrigatório")
		case "email":
			msgs = append(msgs, field+" deve ser um e-mail válido")
		case "max":
			msgs = append(msgs, field+" excede o tamanho máximo de "+e.Param())
		case "validurl":
			msgs = append(msgs, field+" deve ser uma URL válida")
		case "role":
			msgs = append(msgs, field+" deve ser sem_autorizacao, escritor ou admin")
		case "articlestatus":
			msgs = append(msgs, field+" deve ser draft ou published")
		case "strongpassword":
			msgs = append(msgs, identity.ErrWeakPassword.Error())
		case "eqfield":
			msgs = append(msgs, "As senhas não coincidem.")
		default:
			msgs = append(msgs, field+" é inválido")
		}
	}
	return msgs
}

func getFieldName(field string) string {
	fieldNames := map[string]string{
		"Titulo":           "Título",
		"Resumo":           "Resumo",
		"Conteudo":         "Conteúdo",
		"Imagem":           "Imagem",
		"Nome":             "Nome",
		"Sobrenome":        "Sobrenome",
		"Email":            "E-mail",
		"Senha":            "Senha",
		"ConfirmarSenha":   "Confirmação de senha",
		"NivelAutorizacao": "Nível de autorização",
	}
	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}

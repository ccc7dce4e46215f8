package identity

import (
	"errors"
	"strings"
	"unicode"

	"github.com/alexedwards/argon2id"
)

// DefaultHashParams segue os parâmetros recomendados para Argon2id.
var DefaultHashParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrWeakPassword indica senha fora da regra de cadastro.
var ErrWeakPassword = errors.New("a senha deve ter pelo menos 6 caracteres, 1 letra maiúscula, 1 número e 1 caractere especial (!@#$%^&*)")

const specialChars = "!@#$%^&*"

// CheckPasswordStrength aplica a regra de cadastro: ao menos 6 caracteres,
// uma maiúscula, um dígito e um dos caracteres !@#$%^&*.
func CheckPasswordStrength(password string) error {
	if len([]rune(password)) < 6 {
		return ErrWeakPassword
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

func hashPassword(password string, params *argon2id.Params) (string, error) {
	return argon2id.CreateHash(password, params)
}

func verifyPassword(password, encoded string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encoded)
}

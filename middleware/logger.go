package middleware

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carrega o id da requisição.
const RequestIDHeader = "X-Request-ID"

// NewLogger cria o logger da aplicação: console legível e, quando o
// diretório puder ser criado, um arquivo por dia em dir.
func NewLogger(dir string) (zerolog.Logger, io.Closer) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if dir == "" {
		return zerolog.New(console).With().Timestamp().Logger(), nopCloser{}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		l := zerolog.New(console).With().Timestamp().Logger()
		l.Warn().Err(err).Msg("falha ao criar diretório de logs")
		return l, nopCloser{}
	}
	logFile := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l := zerolog.New(console).With().Timestamp().Logger()
		l.Warn().Err(err).Msg("falha ao abrir arquivo de log")
		return l, nopCloser{}
	}
	return zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger(), f
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Logger registra uma linha estruturada por requisição.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event = event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("request_id", reqID)
		if guardStatus := c.GetString("guard_status"); guardStatus != "" {
			event = event.Str("guard", guardStatus)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("http_request")
	}
}

// Recovery converte panics em 500 e registra o ocorrido.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("panic recuperado")
		c.AbortWithStatusJSON(500, gin.H{"error": "erro interno"})
	})
}

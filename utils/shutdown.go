package utils

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// GracefulShutdown espera SIGINT ou SIGTERM, encerra o servidor e depois
// executa os fechamentos na ordem dada.
func GracefulShutdown(srv *http.Server, closers ...func(context.Context) error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("encerrando servidor")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("servidor encerrado com conexões abertas")
	}
	for _, closeFn := range closers {
		if err := closeFn(ctx); err != nil {
			log.Error().Err(err).Msg("falha ao liberar recurso")
		}
	}
	log.Info().Msg("servidor encerrado")
}

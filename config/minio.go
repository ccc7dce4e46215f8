package config

import (
	"context"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinIOConfig MinIO das imagens das notícias.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	PublicURL       string
}

var MinIOClient *minio.Client
var MinIOConf MinIOConfig

// InitMinIO cria o cliente e o bucket, se faltar. Sem MINIO_ENDPOINT o
// upload de imagens fica desabilitado.
func InitMinIO() error {
	MinIOConf = MinIOConfig{
		Endpoint:        os.Getenv("MINIO_ENDPOINT"),
		AccessKeyID:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretAccessKey: getEnv("MINIO_SECRET_KEY", "minioadmin123"),
		UseSSL:          getEnv("MINIO_USE_SSL", "false") == "true",
		BucketName:      getEnv("MINIO_BUCKET_NAME", "apoioufu-imagens"),
		PublicURL:       os.Getenv("MINIO_PUBLIC_URL"),
	}
	if MinIOConf.Endpoint == "" {
		log.Info().Msg("MINIO_ENDPOINT não definido, upload de imagens desabilitado")
		return nil
	}

	client, err := minio.New(MinIOConf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(MinIOConf.AccessKeyID, MinIOConf.SecretAccessKey, ""),
		Secure: MinIOConf.UseSSL,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, MinIOConf.BucketName)
	if err != nil {
		log.Error().Err(err).Msg("falha ao verificar bucket")
		return err
	}
	if !exists {
		if err := client.MakeBucket(ctx, MinIOConf.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Error().Err(err).Msg("falha ao criar bucket")
			return err
		}
		log.Info().Str("bucket", MinIOConf.BucketName).Msg("bucket criado")
	}

	MinIOClient = client
	log.Info().Str("endpoint", MinIOConf.Endpoint).Msg("MinIO inicializado")
	return nil
}

// GetMinIOClient devolve o cliente, ou nil se desabilitado.
func GetMinIOClient() *minio.Client {
	return MinIOClient
}

// GetMinIOConfig devolve a configuração do MinIO.
func GetMinIOConfig() MinIOConfig {
	return MinIOConf
}

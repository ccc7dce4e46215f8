package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"apoioufu/config"
	"apoioufu/docstore"
	"apoioufu/identity"
	"apoioufu/models"
)

var rootCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Prepara o MongoDB do Apoio UFU",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(); err != nil {
			return err
		}
		return config.ConnectDB()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = config.DisconnectDB(ctx)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return createIndexes(cmd.Context(), config.GetDB())
	},
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Cria os índices das coleções",
	RunE: func(cmd *cobra.Command, args []string) error {
		return createIndexes(cmd.Context(), config.GetDB())
	},
}

var seedAdmin struct {
	email     string
	senha     string
	nome      string
	sobrenome string
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Cria a conta administradora semente",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedAdmin.senha == "" {
			return errors.New("informe --senha ou SEED_ADMIN_PASSWORD")
		}
		return createAdmin(cmd.Context(), config.GetDB())
	},
}

func init() {
	rootCmd.AddCommand(indexesCmd, seedAdminCmd)

	f := seedAdminCmd.Flags()
	f.StringVar(&seedAdmin.email, "email", "admin@apoioufu.com", "e-mail da conta")
	f.StringVar(&seedAdmin.senha, "senha", os.Getenv("SEED_ADMIN_PASSWORD"), "senha da conta")
	f.StringVar(&seedAdmin.nome, "nome", "Administrador", "nome")
	f.StringVar(&seedAdmin.sobrenome, "sobrenome", "Apoio UFU", "sobrenome")
}

func main() {
	_ = godotenv.Load("../../.env")
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("init-db falhou")
		os.Exit(1)
	}
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		models.AccountsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		models.UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		models.ArticlesCollection: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dataCriacao", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "autorId", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, idx)
		if err != nil {
			return fmt.Errorf("criar índices de %s: %w", coll, err)
		}
		log.Info().Str("collection", coll).Strs("indexes", names).Msg("índices criados")
	}
	return nil
}

func createAdmin(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store := docstore.NewMongo(db, log.Logger)
	provider := identity.NewProvider(store,
		identity.NewTokenIssuer(config.Config.Auth.JWTSecret, time.Minute),
		identity.NewMemoryRevocations(),
		identity.NewLocalBus(),
		identity.WithLogger(log.Logger),
	)
	defer provider.Close()

	client := provider.NewClient()
	defer client.Close()

	id, err := client.CreateAccount(ctx, seedAdmin.email, seedAdmin.senha)
	if errors.Is(err, identity.ErrAccountExists) {
		log.Info().Str("email", seedAdmin.email).Msg("conta já existe, nada a fazer")
		return nil
	}
	if err != nil {
		return fmt.Errorf("criar conta: %w", err)
	}
	profile := models.Profile{
		Nome:             seedAdmin.nome,
		Sobrenome:        seedAdmin.sobrenome,
		Email:            id.Email,
		NivelAutorizacao: models.RoleAdmin,
	}
	if err := store.Set(ctx, models.UsersCollection, id.UID, profile); err != nil {
		return fmt.Errorf("gravar perfil: %w", err)
	}
	_ = client.SignOut(ctx)
	log.Info().Str("uid", id.UID).Str("email", id.Email).Msg("administrador criado")
	return nil
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ServerConfig é o endereço de escuta do backend.
type ServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig agrupa MongoDB, Redis e a escolha do repositório.
type DatabaseConfig struct {
	Driver  string `json:"driver"`
	MongoDB struct {
		URI      string `json:"uri"`
		Database string `json:"database"`
	} `json:"mongodb"`
	Redis struct {
		URL      string `json:"url"`
		CacheTTL string `json:"cache_ttl"`
	} `json:"redis"`
	Timeout string `json:"timeout"`
}

// AuthConfig configura tokens e contas semente.
type AuthConfig struct {
	JWTSecret  string   `json:"jwt_secret"`
	TokenTTL   string   `json:"token_ttl"`
	SeedEmails []string `json:"seed_emails"`
}

// WebConfig configura CORS, o shell da SPA e o feed.
type WebConfig struct {
	AllowOrigins []string `json:"allow_origins"`
	SPAIndex     string   `json:"spa_index"`
	FeedPageSize int      `json:"feed_page_size"`
	ImageCDN     string   `json:"image_cdn"`
}

// AppConfig é a configuração da aplicação.
type AppConfig struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Web      WebConfig      `json:"web"`
}

var Config *AppConfig

// LoadConfig lê config.json (diretório pai ou atual), cai para os padrões
// quando não encontra e aplica as variáveis de ambiente por cima.
func LoadConfig() error {
	Config = getDefaultConfig()

	configPath := filepath.Join("..", "config.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "config.json"
	}

	file, err := os.Open(configPath)
	switch {
	case os.IsNotExist(err):
		log.Warn().Msg("arquivo de configuração não encontrado, usando padrões")
	case err != nil:
		log.Warn().Err(err).Str("path", configPath).Msg("não foi possível abrir a configuração, usando padrões")
	default:
		defer file.Close()
		loaded := getDefaultConfig()
		if err := json.NewDecoder(file).Decode(loaded); err != nil {
			log.Warn().Err(err).Msg("configuração inválida, usando padrões")
		} else {
			Config = loaded
			log.Info().Str("path", configPath).Msg("configuração carregada")
		}
	}

	applyEnv(Config)
	return nil
}

func getDefaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Auth: AuthConfig{
			JWTSecret:  "dev-secret-change-me",
			TokenTTL:   "24h",
			SeedEmails: []string{"admin@apoioufu.com"},
		},
		Web: WebConfig{
			AllowOrigins: []string{"http://localhost:3000"},
			SPAIndex:     "web/index.html",
			FeedPageSize: 8,
			ImageCDN:     "https://res.cloudinary.com/demo/image/fetch",
		},
	}
	cfg.Database.Driver = "memory"
	cfg.Database.MongoDB.URI = "mongodb://localhost:27017"
	cfg.Database.MongoDB.Database = "apoioufu"
	cfg.Database.Redis.CacheTTL = "1m"
	cfg.Database.Timeout = "5s"
	return cfg
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Database.Driver = getEnv("DOCSTORE", cfg.Database.Driver)
	cfg.Database.MongoDB.URI = getEnv("MONGODB_URI", cfg.Database.MongoDB.URI)
	cfg.Database.MongoDB.Database = getEnv("DB_NAME", cfg.Database.MongoDB.Database)
	cfg.Database.Redis.URL = getEnv("REDIS_URL", cfg.Database.Redis.URL)
	cfg.Database.Redis.CacheTTL = getEnv("CACHE_TTL", cfg.Database.Redis.CacheTTL)
	cfg.Database.Timeout = getEnv("STORE_TIMEOUT", cfg.Database.Timeout)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnv("TOKEN_TTL", cfg.Auth.TokenTTL)
	if v := os.Getenv("SEED_ADMIN_EMAIL"); v != "" {
		cfg.Auth.SeedEmails = splitList(v)
	}
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		cfg.Web.AllowOrigins = splitList(v)
	}
	cfg.Web.SPAIndex = getEnv("SPA_INDEX", cfg.Web.SPAIndex)
	cfg.Web.ImageCDN = getEnv("IMAGE_CDN", cfg.Web.ImageCDN)
	if v := os.Getenv("FEED_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Web.FeedPageSize = n
		} else {
			log.Warn().Str("FEED_PAGE_SIZE", v).Msg("valor ignorado")
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv lê a variável de ambiente ou devolve o padrão.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func duration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func get() *AppConfig {
	if Config == nil {
		LoadConfig()
	}
	return Config
}

// GetServerAddr devolve host:porta.
func GetServerAddr() string {
	c := get()
	return c.Server.Host + ":" + c.Server.Port
}

// GetStoreTimeout devolve o limite das chamadas ao repositório.
func GetStoreTimeout() time.Duration {
	return duration(get().Database.Timeout, 5*time.Second)
}

// GetCacheTTL devolve a validade do cache Redis.
func GetCacheTTL() time.Duration {
	return duration(get().Database.Redis.CacheTTL, time.Minute)
}

// GetTokenTTL devolve a validade dos tokens de sessão.
func GetTokenTTL() time.Duration {
	return duration(get().Auth.TokenTTL, 24*time.Hour)
}

package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/docstore"
	"apoioufu/identity"
	"apoioufu/middleware"
	"apoioufu/models"
	"apoioufu/services"
)

// Deps reúne o que o roteador precisa.
type Deps struct {
	Store        docstore.Store
	Provider     *identity.Provider
	Images       ImageStore
	Health       *HealthHandler
	Logger       zerolog.Logger
	Timeout      time.Duration
	PageSize     int
	ImageCDN     string
	SPAIndex     string
	SeedEmails   []string
	AllowOrigins []string
	SecureCookie bool
}

// NewRouter monta o gin.Engine com todas as rotas.
func NewRouter(d Deps) *gin.Engine {
	if d.Timeout <= 0 {
		d.Timeout = 5 * time.Second
	}
	if len(d.AllowOrigins) == 0 {
		d.AllowOrigins = []string{"http://localhost:3000"}
	}
	if d.Images == nil {
		// StorageService nulo responde ErrStorageDisabled.
		d.Images = (*services.StorageService)(nil)
	}
	if d.Health == nil {
		d.Health = NewHealthHandler().Add("docstore", StoreCheck(d.Store))
	}

	r := gin.New()
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Monitor())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", d.Health.HealthCheck)
	r.GET("/metrics", middleware.GetMetrics())

	articles := services.NewArticleService(d.Store, d.Logger)
	auth := NewAuthHandler(d.Store, d.Timeout, d.SecureCookie, d.Logger)
	news := NewNewsHandler(articles, d.Store, d.ImageCDN, d.PageSize, d.Timeout, d.Logger)
	users := NewUsersHandler(d.Store, d.Provider, d.SeedEmails, d.Timeout, d.Logger)
	storage := NewStorageHandler(d.Images, d.Logger)

	session := middleware.Session(middleware.SessionDeps{
		Provider: d.Provider,
		Profiles: d.Store,
		Timeout:  d.Timeout,
		Logger:   d.Logger,
	})
	writer := middleware.RequireAPI(models.RoleWriter)
	admin := middleware.RequireAPI(models.RoleAdmin)

	api := r.Group("/api", session)
	{
		api.POST("/auth/registrar", auth.Register)
		api.POST("/auth/login", auth.Login)
		api.POST("/auth/logout", auth.Logout)
		api.GET("/session", auth.Session)

		api.GET("/noticias", news.List)
		api.GET("/noticias/stream", news.Stream)
		api.POST("/noticias/stream/:id/mais", news.More)
		api.PUT("/noticias/stream/:id/busca", news.Search)
		api.GET("/noticia/:slug", news.BySlug)

		api.POST("/noticias", writer, news.Create)
		api.GET("/noticias/:id", writer, news.Get)
		api.PUT("/noticias/:id", writer, news.Update)
		api.DELETE("/noticias/:id", writer, news.Delete)
		api.GET("/gerenciar-noticias", writer, news.Manage)

		api.POST("/uploads/imagens", writer, storage.UploadImage)
		api.DELETE("/uploads/imagens/:arquivo", admin, storage.DeleteImage)

		api.GET("/users", admin, users.List)
		api.GET("/users/stream", admin, users.Stream)
		api.POST("/users/stream/:id/ordenar", admin, users.Sort)
		api.PUT("/users/stream/:id/filtro", admin, users.Filter)
		api.PATCH("/users/:id", admin, users.Update)

		api.GET("/denunciar", Report)
		api.GET("/sobre-nos", About)
	}

	shell := SPA(d.SPAIndex)
	pages := r.Group("/", session)
	{
		pages.GET("/", shell)
		for _, p := range []string{"/login", "/registrar", "/noticias", "/noticia/:slug", "/denunciar", "/sobre-nos"} {
			pages.GET(p, shell)
		}
		writerPage := middleware.RequirePage(models.RoleWriter)
		for _, p := range []string{"/escrever-noticia", "/gerenciar-noticias", "/editar/:id"} {
			pages.GET(p, writerPage, shell)
		}
		pages.GET("/users", middleware.RequirePage(models.RoleAdmin), shell)
	}
	return r
}

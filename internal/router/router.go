package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/handler"
	"github.com/stemsi/classpoll/internal/middleware"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/response"
	"github.com/stemsi/classpoll/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Admin     *handler.AdminHandler
	Session   *handler.SessionHandler
	Question  *handler.QuestionHandler
	Option    *handler.OptionHandler
	Student   *handler.StudentHandler
	WS        *handler.WSHandler
	System    *handler.SystemHandler
	Dashboard *handler.DashboardHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all so dev works
	// without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID on every response so clients can quote it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	// Session trees change under the client's feet; never let a proxy cache them.
	api.Use(middleware.NoStore())

	authenticated := []gin.HandlerFunc{
		middleware.RequireJWT(authService),
		middleware.CheckActiveLogin(authService),
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(rdb, "auth", 30, time.Minute, log)
	auth := api.Group("/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.POST("/logout", append(authenticated, handlers.Auth.Logout)...)
		auth.GET("/me", append(authenticated, handlers.Auth.Me)...)
	}

	// ─── 2. Student Group (JWT + Last Login) ───────────────────────────
	responseLimiter := middleware.NewRateLimiter(rdb, "response", 120, time.Minute, log)
	studentAPI := api.Group("/student")
	studentAPI.Use(authenticated...)
	{
		studentAPI.POST("/join", handlers.Student.JoinSession)
		studentAPI.GET("/sessions/:id", handlers.Student.GetSession)
		studentAPI.GET("/sessions/:id/responses", handlers.Student.MyResponses)
		studentAPI.PUT("/questions/:id/response", responseLimiter.Middleware(), handlers.Student.SubmitResponse)
	}

	// ─── 3. Live Counts (any enrolled viewer or owning teacher) ────────
	// RequireJWT falls back to ?token= because browsers cannot set
	// headers on the upgrade request.
	live := api.Group("/sessions")
	live.Use(authenticated...)
	{
		live.GET("/:id/live", handlers.WS.LiveCounts)
	}

	// ─── 4. Teacher Group (JWT + Role ≥ TEACHER) ───────────────────────
	teacherAPI := api.Group("")
	teacherAPI.Use(authenticated...)
	teacherAPI.Use(middleware.RequireRole(model.RoleTeacher))
	{
		teacherAPI.GET("/sessions", handlers.Session.ListSessions)
		teacherAPI.POST("/sessions", handlers.Session.CreateSession)
		teacherAPI.GET("/sessions/:id", handlers.Session.GetSession)
		teacherAPI.PATCH("/sessions/:id", handlers.Session.UpdateSession)
		teacherAPI.DELETE("/sessions/:id", handlers.Session.DeleteSession)

		teacherAPI.POST("/sessions/:id/questions", handlers.Question.CreateQuestion)
		teacherAPI.PUT("/sessions/:id/questions/order", handlers.Question.ReorderQuestions)
		teacherAPI.PATCH("/questions/:id", handlers.Question.UpdateQuestion)
		teacherAPI.POST("/questions/:id/duplicate", handlers.Question.DuplicateQuestion)
		teacherAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		teacherAPI.POST("/questions/:id/options", handlers.Option.CreateOption)
		teacherAPI.PUT("/questions/:id/options/order", handlers.Option.ReorderOptions)
		teacherAPI.PATCH("/options/:id", handlers.Option.UpdateOption)
		teacherAPI.POST("/options/:id/duplicate", handlers.Option.DuplicateOption)
		teacherAPI.DELETE("/options/:id", handlers.Option.DeleteOption)
	}

	// ─── 5. Admin Group (JWT + Role = ADMIN) ───────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(authenticated...)
	adminAPI.Use(middleware.RequireRole(model.RoleAdmin))
	{
		adminAPI.GET("/dashboard", handlers.Dashboard.GetDashboardData)
		adminAPI.PUT("/users/:id/role", handlers.Admin.ChangeRole)
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}

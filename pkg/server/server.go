// Package server exposes the HTML interface, the JSON API and the
// operational endpoints over gin.
//
// HTML pages live at the root (/users, /users/:user_id, ...). The JSON API is
// mounted under /api so it does not clash with them:
//
//	GET    /api/users
//	POST   /api/users
//	GET    /api/users/:user_id/movies
//	POST   /api/users/:user_id/movies
//	PATCH  /api/users/:user_id/movies/:movie_id
//	DELETE /api/users/:user_id/movies/:movie_id
//	GET    /api/movies/:movie_id/reviews
//
// /manage/health and /metrics are the operational endpoints.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moviweb/pkg/datamanager"
	"moviweb/pkg/logging"
	"moviweb/pkg/metrics"
	"moviweb/pkg/omdb"
	"moviweb/pkg/recommend"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// MovieLookup finds movie metadata by title.
type MovieLookup interface {
	Lookup(ctx context.Context, title string) (*omdb.Movie, error)
}

// Recommender suggests movies similar to a favourite title.
type Recommender interface {
	Recommend(ctx context.Context, favourite string, count int) ([]recommend.Recommendation, error)
}

type Server struct {
	dm          datamanager.DataManager
	lookup      MovieLookup
	recommender Recommender
	logger      *zap.Logger
	router      *gin.Engine
}

func New(dm datamanager.DataManager, lookup MovieLookup, recommender Recommender, logger *zap.Logger) *Server {
	s := &Server{
		dm:          dm,
		lookup:      lookup,
		recommender: recommender,
		logger:      logger.With(zap.String(logging.FieldComponent, "server")),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")))
	r.Use(logging.Middleware(s.logger), metrics.Middleware(), gin.CustomRecovery(s.recovered))

	r.GET("/", s.index)
	r.GET("/users", s.listUsers)
	r.GET("/add_user", s.addUserForm)
	r.POST("/add_user", s.addUser)
	r.GET("/users/:user_id", s.userMovies)
	r.POST("/users/:user_id/delete", s.deleteUser)
	r.GET("/users/:user_id/add_movie", s.addMovieForm)
	r.POST("/users/:user_id/add_movie", s.addMovie)
	r.GET("/users/:user_id/update_movie/:movie_id", s.updateMovieForm)
	r.POST("/users/:user_id/update_movie/:movie_id", s.updateMovie)
	r.GET("/users/:user_id/delete_movie/:movie_id", s.deleteMovie)
	r.POST("/users/:user_id/delete_movie/:movie_id", s.deleteMovie)
	r.GET("/users/:user_id/movies/:movie_id/reviews", s.movieReviews)
	r.POST("/users/:user_id/movies/:movie_id/reviews", s.addReview)
	r.POST("/users/:user_id/reviews/:review_id/delete", s.deleteReview)
	r.GET("/users/:user_id/recommend", s.recommendForm)
	r.POST("/users/:user_id/recommend", s.recommend)

	api := r.Group("/api")
	{
		api.GET("/users", s.apiListUsers)
		api.POST("/users", s.apiAddUser)
		api.GET("/users/:user_id/movies", s.apiListMovies)
		api.POST("/users/:user_id/movies", s.apiAddMovie)
		api.PATCH("/users/:user_id/movies/:movie_id", s.apiUpdateMovie)
		api.DELETE("/users/:user_id/movies/:movie_id", s.apiDeleteMovie)
		api.GET("/movies/:movie_id/reviews", s.apiListReviews)
	}

	r.GET("/manage/health", s.healthCheck)
	r.GET("/metrics", metrics.Handler())

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.notFound(c)
	})
	return r
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.dm.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Database is reachable",
	})
}

func (s *Server) notFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "404.html", gin.H{"title": "Not found"})
}

// serverError logs err and renders the 500 page.
func (s *Server) serverError(c *gin.Context, err error) {
	c.Error(err)
	logging.FromContext(c, s.logger).Error("Handler error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.HTML(http.StatusInternalServerError, "500.html", gin.H{"title": "Server error"})
}

func (s *Server) recovered(c *gin.Context, recovered any) {
	logging.FromContext(c, s.logger).Error("Recovered from panic",
		zap.String("path", c.Request.URL.Path),
		zap.Any("panic", recovered),
	)
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.HTML(http.StatusInternalServerError, "500.html", gin.H{"title": "Server error"})
	c.Abort()
}

// parseID reads a positive numeric path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

var templateFuncs = template.FuncMap{
	"rating": func(r float64) string {
		return strconv.FormatFloat(r, 'f', -1, 64)
	},
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"moviweb/pkg/datamanager"
	"moviweb/pkg/logging"
	"moviweb/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type userRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type movieRequest struct {
	Name     string   `json:"name" binding:"required,max=200"`
	Director string   `json:"director" binding:"required,max=200"`
	Year     *int     `json:"year" binding:"required"`
	Rating   *float64 `json:"rating" binding:"required"`
	Genre    string   `json:"genre" binding:"max=100"`
}

type moviePatchRequest struct {
	Name     *string  `json:"name" binding:"omitempty,max=200"`
	Director *string  `json:"director" binding:"omitempty,max=200"`
	Genre    *string  `json:"genre" binding:"omitempty,max=100"`
	Year     *int     `json:"year"`
	Rating   *float64 `json:"rating"`
}

func userJSON(u models.User) gin.H {
	return gin.H{
		"id":   u.ID,
		"name": u.Name,
	}
}

func movieJSON(m models.Movie) gin.H {
	return gin.H{
		"id":            m.ID,
		"name":          m.Name,
		"director_id":   m.DirectorID,
		"director_name": nullable(m.DirectorName()),
		"genre_id":      m.GenreID,
		"genre_name":    nullable(m.GenreName()),
		"year":          m.Year,
		"rating":        m.Rating,
		"user_id":       m.UserID,
	}
}

func reviewJSON(r models.Review) gin.H {
	return gin.H{
		"id":          r.ID,
		"user_id":     r.UserID,
		"movie_id":    r.MovieID,
		"review_text": r.ReviewText,
		"rating":      r.Rating,
		"created_at":  r.CreatedAt,
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func validationError(c *gin.Context, field string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "validation error",
		"errors": map[string]string{
			"field": field,
			"error": err.Error(),
		},
	})
}

func (s *Server) apiError(c *gin.Context, err error) {
	c.Error(err)
	logging.FromContext(c, s.logger).Error("Handler error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// apiUser resolves user_id for the JSON API, answering 404 itself.
func (s *Server) apiUser(c *gin.Context) *models.User {
	userID, ok := parseID(c, "user_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil
	}
	user, err := s.dm.GetUser(c.Request.Context(), userID)
	if errors.Is(err, datamanager.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil
	}
	if err != nil {
		s.apiError(c, err)
		return nil
	}
	return user
}

func (s *Server) apiUserMovie(c *gin.Context) *models.Movie {
	user := s.apiUser(c)
	if user == nil {
		return nil
	}
	movieID, ok := parseID(c, "movie_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
		return nil
	}
	movie, err := s.dm.GetMovie(c.Request.Context(), movieID)
	if errors.Is(err, datamanager.ErrNotFound) || (err == nil && movie.UserID != user.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
		return nil
	}
	if err != nil {
		s.apiError(c, err)
		return nil
	}
	return movie
}

func (s *Server) apiListUsers(c *gin.Context) {
	users, err := s.dm.ListUsers(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		items = append(items, userJSON(u))
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) apiAddUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "request", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		validationError(c, "name", errors.New("name must not be blank"))
		return
	}
	user, err := s.dm.AddUser(c.Request.Context(), name)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userJSON(*user))
}

func (s *Server) apiListMovies(c *gin.Context) {
	user := s.apiUser(c)
	if user == nil {
		return
	}
	movies, err := s.dm.ListMoviesForUser(c.Request.Context(), user.ID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	items := make([]gin.H, 0, len(movies))
	for _, m := range movies {
		items = append(items, movieJSON(m))
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) apiAddMovie(c *gin.Context) {
	user := s.apiUser(c)
	if user == nil {
		return
	}
	var req movieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "request", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		validationError(c, "name", errors.New("name must not be blank"))
		return
	}

	movie, err := s.dm.AddMovie(c.Request.Context(), user.ID, name, req.Director, *req.Year, *req.Rating, req.Genre)
	if errors.Is(err, datamanager.ErrReference) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movieJSON(*movie))
}

func (s *Server) apiUpdateMovie(c *gin.Context) {
	movie := s.apiUserMovie(c)
	if movie == nil {
		return
	}
	var req moviePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "request", err)
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			validationError(c, "name", errors.New("name must not be blank"))
			return
		}
		req.Name = &name
	}

	updated, err := s.dm.UpdateMovie(c.Request.Context(), movie.ID, datamanager.MoviePatch{
		Name:     req.Name,
		Director: req.Director,
		Genre:    req.Genre,
		Year:     req.Year,
		Rating:   req.Rating,
	})
	if errors.Is(err, datamanager.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
		return
	}
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, movieJSON(*updated))
}

func (s *Server) apiDeleteMovie(c *gin.Context) {
	movie := s.apiUserMovie(c)
	if movie == nil {
		return
	}
	deleted, err := s.dm.DeleteMovie(c.Request.Context(), movie.ID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) apiListReviews(c *gin.Context) {
	movieID, ok := parseID(c, "movie_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
		return
	}
	ctx := c.Request.Context()
	if _, err := s.dm.GetMovie(ctx, movieID); err != nil {
		if errors.Is(err, datamanager.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
			return
		}
		s.apiError(c, err)
		return
	}
	reviews, err := s.dm.ListReviewsForMovie(ctx, movieID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	items := make([]gin.H, 0, len(reviews))
	for _, r := range reviews {
		items = append(items, reviewJSON(r))
	}
	c.JSON(http.StatusOK, items)
}

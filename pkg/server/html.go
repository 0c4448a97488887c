package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"moviweb/pkg/datamanager"
	"moviweb/pkg/models"
	"moviweb/pkg/omdb"
	"moviweb/pkg/recommend"

	"github.com/gin-gonic/gin"
)

const (
	msgNameRequired     = "Name is required"
	msgTitleRequired    = "Title is required"
	msgInvalidNumbers   = "Year must be a whole number and rating must be a number."
	msgInvalidRating    = "Rating must be a number."
	msgReviewRequired   = "Review text is required"
	msgLookupDown       = "The movie service is unavailable right now. Please try again later."
	msgRecommendOff     = "Recommendations are not configured."
	msgRecommendLimited = "Too many recommendation requests. Please wait a moment and try again."
	msgRecommendDown    = "The recommendation service is unavailable right now. Please try again later."
)

const (
	defaultRecommendations = 5
	maxRecommendations     = 10
)

func userPath(id uint) string {
	return fmt.Sprintf("/users/%d", id)
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"title": "MoviWeb"})
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.dm.ListUsers(c.Request.Context())
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.HTML(http.StatusOK, "users.html", gin.H{"title": "Users", "users": users})
}

func (s *Server) addUserForm(c *gin.Context) {
	c.HTML(http.StatusOK, "add_user.html", gin.H{"title": "Add user"})
}

func (s *Server) addUser(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.HTML(http.StatusOK, "add_user.html", gin.H{"title": "Add user", "error": msgNameRequired})
		return
	}
	if _, err := s.dm.AddUser(c.Request.Context(), name); err != nil {
		s.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/users")
}

func (s *Server) deleteUser(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		s.notFound(c)
		return
	}
	deleted, err := s.dm.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if !deleted {
		s.notFound(c)
		return
	}
	c.Redirect(http.StatusFound, "/users")
}

// loadUser resolves the user_id path parameter. It renders the error page and
// returns nil when the user cannot be loaded.
func (s *Server) loadUser(c *gin.Context) *models.User {
	userID, ok := parseID(c, "user_id")
	if !ok {
		s.notFound(c)
		return nil
	}
	user, err := s.dm.GetUser(c.Request.Context(), userID)
	if errors.Is(err, datamanager.ErrNotFound) {
		s.notFound(c)
		return nil
	}
	if err != nil {
		s.serverError(c, err)
		return nil
	}
	return user
}

// loadUserMovie resolves user_id and movie_id and checks that the movie
// belongs to the user.
func (s *Server) loadUserMovie(c *gin.Context) (*models.User, *models.Movie) {
	user := s.loadUser(c)
	if user == nil {
		return nil, nil
	}
	movieID, ok := parseID(c, "movie_id")
	if !ok {
		s.notFound(c)
		return nil, nil
	}
	movie, err := s.dm.GetMovie(c.Request.Context(), movieID)
	if errors.Is(err, datamanager.ErrNotFound) || (err == nil && movie.UserID != user.ID) {
		s.notFound(c)
		return nil, nil
	}
	if err != nil {
		s.serverError(c, err)
		return nil, nil
	}
	return user, movie
}

func (s *Server) userMovies(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	ctx := c.Request.Context()
	movies, err := s.dm.ListMoviesForUser(ctx, user.ID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	reviews, err := s.dm.ListReviewsForUser(ctx, user.ID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	titles := make(map[uint]string, len(movies))
	for _, m := range movies {
		titles[m.ID] = m.Name
	}
	c.HTML(http.StatusOK, "user_movies.html", gin.H{
		"title":   user.Name,
		"user":    user,
		"movies":  movies,
		"reviews": reviews,
		"titles":  titles,
	})
}

func (s *Server) addMovieForm(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	c.HTML(http.StatusOK, "add_movie.html", gin.H{"title": "Add movie", "user": user})
}

// addMovie looks the title up in the metadata service and stores the result.
// Lookup failures re-render the form with a message.
func (s *Server) addMovie(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	render := func(msg string) {
		c.HTML(http.StatusOK, "add_movie.html", gin.H{
			"title":      "Add movie",
			"user":       user,
			"movieTitle": title,
			"error":      msg,
		})
	}
	if title == "" {
		render(msgTitleRequired)
		return
	}

	ctx := c.Request.Context()
	found, err := s.lookup.Lookup(ctx, title)
	if err != nil {
		var nf *omdb.NotFoundError
		switch {
		case errors.As(err, &nf):
			render(nf.Reason)
		case errors.Is(err, omdb.ErrNotFound):
			render("Movie not found!")
		default:
			render(msgLookupDown)
		}
		return
	}

	name := found.Title
	if name == "" {
		name = title
	}
	_, err = s.dm.AddMovie(ctx, user.ID, name, found.Director, found.Year, found.Rating, found.Genre)
	if errors.Is(err, datamanager.ErrReference) {
		s.notFound(c)
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, userPath(user.ID))
}

func (s *Server) renderUpdateForm(c *gin.Context, user *models.User, movie *models.Movie, msg string) {
	ctx := c.Request.Context()
	directors, err := s.dm.ListDirectors(ctx)
	if err != nil {
		s.serverError(c, err)
		return
	}
	genres, err := s.dm.ListGenres(ctx)
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.HTML(http.StatusOK, "update_movie.html", gin.H{
		"title":     "Update movie",
		"user":      user,
		"movie":     movie,
		"directors": directors,
		"genres":    genres,
		"error":     msg,
	})
}

func (s *Server) updateMovieForm(c *gin.Context) {
	user, movie := s.loadUserMovie(c)
	if movie == nil {
		return
	}
	s.renderUpdateForm(c, user, movie, "")
}

// updateMovie applies the submitted form as a patch. Director and genre are
// only changed when the form carries those fields.
func (s *Server) updateMovie(c *gin.Context) {
	user, movie := s.loadUserMovie(c)
	if movie == nil {
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		s.renderUpdateForm(c, user, movie, msgNameRequired)
		return
	}
	year, yearErr := strconv.Atoi(strings.TrimSpace(c.PostForm("year")))
	rating, ratingErr := parseRating(c.PostForm("rating"))
	if yearErr != nil || ratingErr != nil {
		s.renderUpdateForm(c, user, movie, msgInvalidNumbers)
		return
	}

	patch := datamanager.MoviePatch{Name: &name, Year: &year, Rating: &rating}
	if director, ok := c.GetPostForm("director"); ok {
		patch.Director = &director
	}
	if genre, ok := c.GetPostForm("genre"); ok {
		patch.Genre = &genre
	}

	_, err := s.dm.UpdateMovie(c.Request.Context(), movie.ID, patch)
	if errors.Is(err, datamanager.ErrNotFound) {
		s.notFound(c)
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, userPath(user.ID))
}

func (s *Server) deleteMovie(c *gin.Context) {
	user, movie := s.loadUserMovie(c)
	if movie == nil {
		return
	}
	deleted, err := s.dm.DeleteMovie(c.Request.Context(), movie.ID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	if !deleted {
		s.notFound(c)
		return
	}
	c.Redirect(http.StatusFound, userPath(user.ID))
}

func (s *Server) renderReviews(c *gin.Context, user *models.User, movie *models.Movie, form gin.H) {
	reviews, err := s.dm.ListReviewsForMovie(c.Request.Context(), movie.ID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	data := gin.H{
		"title":   "Reviews of " + movie.Name,
		"user":    user,
		"movie":   movie,
		"reviews": reviews,
	}
	for k, v := range form {
		data[k] = v
	}
	c.HTML(http.StatusOK, "reviews.html", data)
}

func (s *Server) movieReviews(c *gin.Context) {
	user, movie := s.loadUserMovie(c)
	if movie == nil {
		return
	}
	s.renderReviews(c, user, movie, nil)
}

func (s *Server) addReview(c *gin.Context) {
	user, movie := s.loadUserMovie(c)
	if movie == nil {
		return
	}
	text := strings.TrimSpace(c.PostForm("review_text"))
	rawRating := c.PostForm("rating")
	form := gin.H{"reviewText": text, "reviewRating": rawRating}
	if text == "" {
		form["error"] = msgReviewRequired
		s.renderReviews(c, user, movie, form)
		return
	}
	rating, err := parseRating(rawRating)
	if err != nil {
		form["error"] = msgInvalidRating
		s.renderReviews(c, user, movie, form)
		return
	}

	_, err = s.dm.AddReview(c.Request.Context(), user.ID, movie.ID, text, rating)
	if errors.Is(err, datamanager.ErrReference) {
		s.notFound(c)
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/users/%d/movies/%d/reviews", user.ID, movie.ID))
}

func (s *Server) deleteReview(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	reviewID, ok := parseID(c, "review_id")
	if !ok {
		s.notFound(c)
		return
	}
	ctx := c.Request.Context()
	review, err := s.dm.GetReview(ctx, reviewID)
	if errors.Is(err, datamanager.ErrNotFound) || (err == nil && review.UserID != user.ID) {
		s.notFound(c)
		return
	}
	if err != nil {
		s.serverError(c, err)
		return
	}
	if _, err := s.dm.DeleteReview(ctx, review.ID); err != nil {
		s.serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, userPath(user.ID))
}

func (s *Server) renderRecommend(c *gin.Context, user *models.User, form gin.H) {
	movies, err := s.dm.ListMoviesForUser(c.Request.Context(), user.ID)
	if err != nil {
		s.serverError(c, err)
		return
	}
	data := gin.H{
		"title":  "Recommendations",
		"user":   user,
		"movies": movies,
		"count":  defaultRecommendations,
	}
	for k, v := range form {
		data[k] = v
	}
	c.HTML(http.StatusOK, "recommend.html", data)
}

func (s *Server) recommendForm(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	s.renderRecommend(c, user, nil)
}

func (s *Server) recommend(c *gin.Context) {
	user := s.loadUser(c)
	if user == nil {
		return
	}
	favourite := strings.TrimSpace(c.PostForm("favourite"))
	count, err := strconv.Atoi(c.DefaultPostForm("count", strconv.Itoa(defaultRecommendations)))
	if err != nil || count < 1 {
		count = defaultRecommendations
	}
	if count > maxRecommendations {
		count = maxRecommendations
	}
	form := gin.H{"favourite": favourite, "count": count}
	if favourite == "" {
		form["error"] = msgTitleRequired
		s.renderRecommend(c, user, form)
		return
	}

	recommendations, err := s.recommender.Recommend(c.Request.Context(), favourite, count)
	switch {
	case err == nil:
		form["recommendations"] = recommendations
	case errors.Is(err, recommend.ErrDisabled):
		form["error"] = msgRecommendOff
	case errors.Is(err, recommend.ErrRateLimited):
		form["error"] = msgRecommendLimited
	default:
		form["error"] = msgRecommendDown
	}
	s.renderRecommend(c, user, form)
}

// parseRating accepts any finite float.
func parseRating(raw string) (float64, error) {
	rating, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("rating %q is not finite", raw)
	}
	return rating, nil
}

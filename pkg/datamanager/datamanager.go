// Package datamanager is the data access layer for users, movies, directors,
// genres and reviews.
package datamanager

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"moviweb/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrReference is returned when a write refers to a user or movie that
	// does not exist.
	ErrReference = errors.New("referenced record does not exist")
)

// DataManager is the set of storage operations the handlers depend on.
type DataManager interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	AddUser(ctx context.Context, name string) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) (bool, error)

	ListMoviesForUser(ctx context.Context, userID uint) ([]models.Movie, error)
	GetMovie(ctx context.Context, id uint) (*models.Movie, error)
	AddMovie(ctx context.Context, userID uint, name, directorName string, year int, rating float64, genreName string) (*models.Movie, error)
	UpdateMovie(ctx context.Context, id uint, patch MoviePatch) (*models.Movie, error)
	DeleteMovie(ctx context.Context, id uint) (bool, error)

	ListDirectors(ctx context.Context) ([]models.Director, error)
	ListGenres(ctx context.Context) ([]models.Genre, error)

	AddReview(ctx context.Context, userID, movieID uint, text string, rating float64) (*models.Review, error)
	GetReview(ctx context.Context, id uint) (*models.Review, error)
	ListReviewsForMovie(ctx context.Context, movieID uint) ([]models.Review, error)
	ListReviewsForUser(ctx context.Context, userID uint) ([]models.Review, error)
	DeleteReview(ctx context.Context, id uint) (bool, error)

	Ping(ctx context.Context) error
}

// MoviePatch lists the movie attributes an update may change. Nil fields are
// left untouched. Director and Genre are names resolved with find-or-create;
// an empty name clears the reference.
type MoviePatch struct {
	Name     *string
	Director *string
	Genre    *string
	Year     *int
	Rating   *float64
}

// Empty reports whether the patch changes nothing.
func (p MoviePatch) Empty() bool {
	return p.Name == nil && p.Director == nil && p.Genre == nil && p.Year == nil && p.Rating == nil
}

var yearPattern = regexp.MustCompile(`[0-9]{4}`)

// ParseYear extracts the first run of four digits from raw, e.g. 2013 from
// "2013–2015". It returns 0 when there is none.
func ParseYear(raw string) int {
	match := yearPattern.FindString(raw)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

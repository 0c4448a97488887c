package datamanager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"moviweb/pkg/config"
	"moviweb/pkg/database"
	"moviweb/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, *SQLDataManager) {
	t.Helper()
	db, err := database.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	return db, New(db, zap.NewNop())
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func strPtr(s string) *string { return &s }

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
	}{
		{"2010", 2010},
		{"2013–2015", 2013},
		{"2013– ", 2013},
		{"Released in 1999.", 1999},
		{"12345", 1234},
		{"", 0},
		{"no digits here", 0},
		{"N/A", 0},
		{"199", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseYear(tt.raw))
		})
	}
}

func TestAddUserAndGetUser(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	first, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	second, err := dm.AddUser(ctx, "Marco")
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	user, err := dm.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lina", user.Name)

	users, err := dm.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestGetUserNotFound(t *testing.T) {
	_, dm := setupTestDB(t)

	_, err := dm.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndToEndAddAndListMovies(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	_, err = dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)

	movies, err := dm.ListMoviesForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Inception", movies[0].Name)
	assert.Equal(t, "Christopher Nolan", movies[0].DirectorName())
	assert.Nil(t, movies[0].GenreID)
	assert.Equal(t, 2010, movies[0].Year)
	assert.Equal(t, 8.8, movies[0].Rating)
}

func TestAddMovieReusesDirectorAndGenre(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	first, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "Sci-Fi")
	require.NoError(t, err)
	second, err := dm.AddMovie(ctx, user.ID, "Interstellar", " Christopher Nolan ", 2014, 8.7, "Sci-Fi")
	require.NoError(t, err)

	require.NotNil(t, first.DirectorID)
	require.NotNil(t, second.DirectorID)
	assert.Equal(t, *first.DirectorID, *second.DirectorID)
	assert.Equal(t, *first.GenreID, *second.GenreID)
	assert.Equal(t, int64(1), count(t, db, &models.Director{}))
	assert.Equal(t, int64(1), count(t, db, &models.Genre{}))
}

func TestConcurrentAddMovieSharesDirectorAndGenre(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "moviweb.db") + "?_foreign_keys=on",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectRetries:  1,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	dm := New(db, zap.NewNop())
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)

	const writers = 40
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "Sci-Fi")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(writers), count(t, db, &models.Movie{}))
	assert.Equal(t, int64(1), count(t, db, &models.Director{}))
	assert.Equal(t, int64(1), count(t, db, &models.Genre{}))
}

func TestDirectorLookupIsCaseSensitive(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	first, err := dm.AddMovie(ctx, user.ID, "Heat", "Michael Mann", 1995, 8.3, "")
	require.NoError(t, err)
	second, err := dm.AddMovie(ctx, user.ID, "Collateral", "michael mann", 2004, 7.5, "")
	require.NoError(t, err)

	assert.NotEqual(t, *first.DirectorID, *second.DirectorID)
	assert.Equal(t, int64(2), count(t, db, &models.Director{}))
}

func TestAddMovieBlankNamesLeaveReferencesEmpty(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Untitled", "   ", 0, -1, "")
	require.NoError(t, err)

	assert.Nil(t, movie.DirectorID)
	assert.Nil(t, movie.GenreID)
	assert.Equal(t, "", movie.DirectorName())
	assert.Equal(t, -1.0, movie.Rating)
	assert.Equal(t, int64(0), count(t, db, &models.Director{}))
}

func TestAddMovieUnknownUser(t *testing.T) {
	db, dm := setupTestDB(t)

	_, err := dm.AddMovie(context.Background(), 42, "Inception", "Christopher Nolan", 2010, 8.8, "")
	assert.ErrorIs(t, err, ErrReference)
	assert.Equal(t, int64(0), count(t, db, &models.Movie{}))
	assert.Equal(t, int64(0), count(t, db, &models.Director{}))
}

func TestAddMovieRollsBackOnFailure(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)

	failure := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_movies", func(tx *gorm.DB) {
		if tx.Statement.Table == "movies" {
			tx.AddError(failure)
		}
	}))

	_, err = dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "Sci-Fi")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, int64(0), count(t, db, &models.Director{}))
	assert.Equal(t, int64(0), count(t, db, &models.Genre{}))
	assert.Equal(t, int64(0), count(t, db, &models.Movie{}))
}

func TestListMoviesForUnknownUserIsEmpty(t *testing.T) {
	_, dm := setupTestDB(t)

	movies, err := dm.ListMoviesForUser(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestUpdateMovieRatingOnly(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "Sci-Fi")
	require.NoError(t, err)

	rating := 9.0
	updated, err := dm.UpdateMovie(ctx, movie.ID, MoviePatch{Rating: &rating})
	require.NoError(t, err)

	assert.Equal(t, 9.0, updated.Rating)
	assert.Equal(t, "Inception", updated.Name)
	assert.Equal(t, 2010, updated.Year)
	assert.Equal(t, *movie.DirectorID, *updated.DirectorID)
	assert.Equal(t, "Christopher Nolan", updated.DirectorName())
	assert.Equal(t, "Sci-Fi", updated.GenreName())
}

func TestUpdateMovieRelinksDirector(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Dune", "David Lynch", 1984, 6.3, "")
	require.NoError(t, err)

	year := 2021
	updated, err := dm.UpdateMovie(ctx, movie.ID, MoviePatch{
		Director: strPtr("Denis Villeneuve"),
		Genre:    strPtr("Sci-Fi"),
		Year:     &year,
	})
	require.NoError(t, err)
	assert.Equal(t, "Denis Villeneuve", updated.DirectorName())
	assert.Equal(t, "Sci-Fi", updated.GenreName())
	assert.Equal(t, 2021, updated.Year)
	assert.Equal(t, int64(2), count(t, db, &models.Director{}))

	cleared, err := dm.UpdateMovie(ctx, movie.ID, MoviePatch{Director: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.DirectorID)
	assert.Equal(t, "Sci-Fi", cleared.GenreName())
}

func TestUpdateMovieUnknownIDWritesNothing(t *testing.T) {
	db, dm := setupTestDB(t)

	_, err := dm.UpdateMovie(context.Background(), 999, MoviePatch{Director: strPtr("Nobody")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), count(t, db, &models.Director{}))
}

func TestUpdateMovieEmptyPatch(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)

	assert.True(t, MoviePatch{}.Empty())
	updated, err := dm.UpdateMovie(ctx, movie.ID, MoviePatch{})
	require.NoError(t, err)
	assert.Equal(t, movie.Name, updated.Name)
	assert.Equal(t, movie.Rating, updated.Rating)
}

func TestDeleteMovieTwice(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)
	_, err = dm.AddReview(ctx, user.ID, movie.ID, "Great", 9)
	require.NoError(t, err)

	deleted, err := dm.DeleteMovie(ctx, movie.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = dm.DeleteMovie(ctx, movie.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.Equal(t, int64(0), count(t, db, &models.Review{}))
	_, err = dm.GetMovie(ctx, movie.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	db, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	other, err := dm.AddUser(ctx, "Marco")
	require.NoError(t, err)

	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)
	_, err = dm.AddReview(ctx, user.ID, movie.ID, "Mind-bending", 9)
	require.NoError(t, err)
	_, err = dm.AddReview(ctx, other.ID, movie.ID, "Too loud", 6)
	require.NoError(t, err)
	otherMovie, err := dm.AddMovie(ctx, other.ID, "Heat", "Michael Mann", 1995, 8.3, "")
	require.NoError(t, err)

	deleted, err := dm.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	var movies int64
	require.NoError(t, db.Model(&models.Movie{}).Where("user_id = ?", user.ID).Count(&movies).Error)
	assert.Zero(t, movies)

	var reviews int64
	require.NoError(t, db.Model(&models.Review{}).Where("user_id = ? OR movie_id = ?", user.ID, movie.ID).Count(&reviews).Error)
	assert.Zero(t, reviews)

	_, err = dm.GetMovie(ctx, otherMovie.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count(t, db, &models.Director{}))

	deleted, err = dm.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAddReviewAlwaysInserts(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)

	first, err := dm.AddReview(ctx, user.ID, movie.ID, "Great", 9)
	require.NoError(t, err)
	second, err := dm.AddReview(ctx, user.ID, movie.ID, "Still great", 9.5)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())

	byMovie, err := dm.ListReviewsForMovie(ctx, movie.ID)
	require.NoError(t, err)
	assert.Len(t, byMovie, 2)

	byUser, err := dm.ListReviewsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	review, err := dm.GetReview(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Great", review.ReviewText)
}

func TestAddReviewUnknownReferences(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)

	_, err = dm.AddReview(ctx, user.ID, 999, "Nothing", 1)
	assert.ErrorIs(t, err, ErrReference)
	_, err = dm.AddReview(ctx, 999, 1, "Nothing", 1)
	assert.ErrorIs(t, err, ErrReference)
}

func TestDeleteReview(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	movie, err := dm.AddMovie(ctx, user.ID, "Inception", "Christopher Nolan", 2010, 8.8, "")
	require.NoError(t, err)
	review, err := dm.AddReview(ctx, user.ID, movie.ID, "Great", 9)
	require.NoError(t, err)

	deleted, err := dm.DeleteReview(ctx, review.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = dm.DeleteReview(ctx, review.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = dm.GetReview(ctx, review.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDirectorsAndGenres(t *testing.T) {
	_, dm := setupTestDB(t)
	ctx := context.Background()

	user, err := dm.AddUser(ctx, "Lina")
	require.NoError(t, err)
	_, err = dm.AddMovie(ctx, user.ID, "Heat", "Michael Mann", 1995, 8.3, "Crime")
	require.NoError(t, err)
	_, err = dm.AddMovie(ctx, user.ID, "Alien", "Ridley Scott", 1979, 8.5, "Horror")
	require.NoError(t, err)

	directors, err := dm.ListDirectors(ctx)
	require.NoError(t, err)
	require.Len(t, directors, 2)
	assert.Equal(t, "Michael Mann", directors[0].Name)

	genres, err := dm.ListGenres(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "Crime", genres[0].Name)

	assert.NoError(t, dm.Ping(ctx))
}

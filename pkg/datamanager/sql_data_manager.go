package datamanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviweb/pkg/logging"
	"moviweb/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLDataManager implements DataManager on top of gorm. Every method that
// writes runs in a single transaction.
type SQLDataManager struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) *SQLDataManager {
	logger = logger.With(
		zap.String(logging.FieldComponent, "datamanager"),
		zap.String(logging.FieldType, "gorm"),
	)
	return &SQLDataManager{db: db, logger: logger}
}

func (m *SQLDataManager) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := m.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (m *SQLDataManager) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err, "get user %d", id)
	}
	return &user, nil
}

func (m *SQLDataManager) AddUser(ctx context.Context, name string) (*models.User, error) {
	user := models.User{Name: name}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	m.logger.Debug("User created", zap.Uint("user_id", user.ID))
	return &user, nil
}

// DeleteUser removes the user together with its movies, its reviews and the
// reviews of its movies.
func (m *SQLDataManager) DeleteUser(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movieIDs := tx.Model(&models.Movie{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("user_id = ? OR movie_id IN (?)", id, movieIDs).Delete(&models.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Movie{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	return deleted, nil
}

func (m *SQLDataManager) ListMoviesForUser(ctx context.Context, userID uint) ([]models.Movie, error) {
	var movies []models.Movie
	err := m.db.WithContext(ctx).
		Preload("Director").
		Preload("Genre").
		Where("user_id = ?", userID).
		Order("id").
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("list movies for user %d: %w", userID, err)
	}
	return movies, nil
}

func (m *SQLDataManager) GetMovie(ctx context.Context, id uint) (*models.Movie, error) {
	movie, err := loadMovie(m.db.WithContext(ctx), id)
	if err != nil {
		return nil, lookupError(err, "get movie %d", id)
	}
	return movie, nil
}

// AddMovie creates a movie owned by userID. Director and genre names are
// resolved with find-or-create in the same transaction as the insert.
func (m *SQLDataManager) AddMovie(ctx context.Context, userID uint, name, directorName string, year int, rating float64, genreName string) (*models.Movie, error) {
	var movie *models.Movie
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &models.User{}, userID); err != nil {
			return err
		}
		directorID, err := resolveDirector(tx, directorName)
		if err != nil {
			return err
		}
		genreID, err := resolveGenre(tx, genreName)
		if err != nil {
			return err
		}
		row := models.Movie{
			Name:       name,
			Year:       year,
			Rating:     rating,
			UserID:     userID,
			DirectorID: directorID,
			GenreID:    genreID,
		}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		movie, err = loadMovie(tx, row.ID)
		return err
	})
	if errors.Is(err, ErrReference) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("add movie for user %d: %w", userID, err)
	}
	m.logger.Debug("Movie created", zap.Uint("movie_id", movie.ID), zap.Uint("user_id", userID))
	return movie, nil
}

func (m *SQLDataManager) UpdateMovie(ctx context.Context, id uint, patch MoviePatch) (*models.Movie, error) {
	var movie *models.Movie
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Movie
		if err := tx.First(&current, id).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Year != nil {
			updates["year"] = *patch.Year
		}
		if patch.Rating != nil {
			updates["rating"] = *patch.Rating
		}
		if patch.Director != nil {
			directorID, err := resolveDirector(tx, *patch.Director)
			if err != nil {
				return err
			}
			updates["director_id"] = directorID
		}
		if patch.Genre != nil {
			genreID, err := resolveGenre(tx, *patch.Genre)
			if err != nil {
				return err
			}
			updates["genre_id"] = genreID
		}

		if len(updates) > 0 {
			if err := tx.Model(&current).Omit(clause.Associations).Updates(updates).Error; err != nil {
				return err
			}
		}
		var err error
		movie, err = loadMovie(tx, id)
		return err
	})
	if err != nil {
		return nil, lookupError(err, "update movie %d", id)
	}
	return movie, nil
}

// DeleteMovie removes the movie and its reviews. It reports whether the movie
// existed.
func (m *SQLDataManager) DeleteMovie(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("movie_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Movie{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete movie %d: %w", id, err)
	}
	return deleted, nil
}

func (m *SQLDataManager) ListDirectors(ctx context.Context) ([]models.Director, error) {
	var directors []models.Director
	if err := m.db.WithContext(ctx).Order("name").Find(&directors).Error; err != nil {
		return nil, fmt.Errorf("list directors: %w", err)
	}
	return directors, nil
}

func (m *SQLDataManager) ListGenres(ctx context.Context) ([]models.Genre, error) {
	var genres []models.Genre
	if err := m.db.WithContext(ctx).Order("name").Find(&genres).Error; err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	return genres, nil
}

// AddReview always inserts a new review, even when the user already reviewed
// the movie.
func (m *SQLDataManager) AddReview(ctx context.Context, userID, movieID uint, text string, rating float64) (*models.Review, error) {
	review := models.Review{
		UserID:     userID,
		MovieID:    movieID,
		ReviewText: text,
		Rating:     rating,
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireExists(tx, &models.User{}, userID); err != nil {
			return err
		}
		if err := requireExists(tx, &models.Movie{}, movieID); err != nil {
			return err
		}
		return tx.Create(&review).Error
	})
	if errors.Is(err, ErrReference) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("add review for movie %d: %w", movieID, err)
	}
	return &review, nil
}

func (m *SQLDataManager) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	if err := m.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return nil, lookupError(err, "get review %d", id)
	}
	return &review, nil
}

func (m *SQLDataManager) ListReviewsForMovie(ctx context.Context, movieID uint) ([]models.Review, error) {
	var reviews []models.Review
	err := m.db.WithContext(ctx).
		Where("movie_id = ?", movieID).
		Order("created_at DESC, id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews for movie %d: %w", movieID, err)
	}
	return reviews, nil
}

func (m *SQLDataManager) ListReviewsForUser(ctx context.Context, userID uint) ([]models.Review, error) {
	var reviews []models.Review
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews for user %d: %w", userID, err)
	}
	return reviews, nil
}

func (m *SQLDataManager) DeleteReview(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Review{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete review %d: %w", id, err)
	}
	return deleted, nil
}

func (m *SQLDataManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func loadMovie(db *gorm.DB, id uint) (*models.Movie, error) {
	var movie models.Movie
	if err := db.Preload("Director").Preload("Genre").First(&movie, id).Error; err != nil {
		return nil, err
	}
	return &movie, nil
}

func requireExists(tx *gorm.DB, model interface{}, id uint) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrReference
	}
	return nil
}

func resolveDirector(tx *gorm.DB, name string) (*uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	director := models.Director{Name: name}
	if err := findOrCreate(tx, &director, name); err != nil {
		return nil, fmt.Errorf("resolve director %q: %w", name, err)
	}
	return &director.ID, nil
}

func resolveGenre(tx *gorm.DB, name string) (*uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	genre := models.Genre{Name: name}
	if err := findOrCreate(tx, &genre, name); err != nil {
		return nil, fmt.Errorf("resolve genre %q: %w", name, err)
	}
	return &genre.ID, nil
}

// findOrCreate loads the row with the given name into dest, inserting dest
// when there is none. An insert that loses a race against a concurrent one
// hits the unique name index, is skipped, and the winner's row is read back.
func findOrCreate(tx *gorm.DB, dest interface{}, name string) error {
	err := tx.Where("name = ?", name).Take(dest).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(dest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tx.Where("name = ?", name).Take(dest).Error
	}
	return nil
}

func lookupError(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

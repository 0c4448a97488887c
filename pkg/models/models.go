package models

import (
	"time"
)

// User owns movies and reviews. Deleting a user removes both.
type User struct {
	ID      uint     `gorm:"primaryKey"`
	Name    string   `gorm:"size:100;not null"`
	Movies  []Movie  `gorm:"constraint:OnDelete:CASCADE"`
	Reviews []Review `gorm:"constraint:OnDelete:CASCADE"`
}

type Director struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:200;not null;uniqueIndex"`
	BirthDate *time.Time
}

type Genre struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100;not null;uniqueIndex"`
}

type Movie struct {
	ID         uint    `gorm:"primaryKey"`
	Name       string  `gorm:"size:200;not null"`
	Year       int     `gorm:"not null"`
	Rating     float64 `gorm:"not null"`
	UserID     uint    `gorm:"not null;index"`
	DirectorID *uint   `gorm:"index"`
	GenreID    *uint   `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Director *Director `gorm:"foreignKey:DirectorID;constraint:OnDelete:SET NULL"`
	Genre    *Genre    `gorm:"foreignKey:GenreID;constraint:OnDelete:SET NULL"`
	Reviews  []Review  `gorm:"constraint:OnDelete:CASCADE"`
}

// DirectorName returns the linked director's name, or "" when the movie has none.
func (m Movie) DirectorName() string {
	if m.Director == nil {
		return ""
	}
	return m.Director.Name
}

// GenreName returns the linked genre's name, or "" when the movie has none.
func (m Movie) GenreName() string {
	if m.Genre == nil {
		return ""
	}
	return m.Genre.Name
}

type Review struct {
	ID         uint    `gorm:"primaryKey"`
	UserID     uint    `gorm:"not null;index"`
	MovieID    uint    `gorm:"not null;index"`
	ReviewText string  `gorm:"type:text;not null"`
	Rating     float64 `gorm:"not null"`
	CreatedAt  time.Time
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Director{}, &Genre{}, &Movie{}, &Review{}}
}

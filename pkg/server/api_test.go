package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"moviweb/pkg/datamanager"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonContentType = "application/json"

func decodeObject(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &response))
	return response
}

func decodeList(t *testing.T, body []byte) []map[string]interface{} {
	t.Helper()
	var response []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &response))
	return response
}

func TestAPIListUsers(t *testing.T) {
	env := setupServer(t)

	w := env.get("/api/users")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	lina := env.createUser(t, "Lina")
	env.createUser(t, "Max")

	w = env.get("/api/users")
	assert.Equal(t, http.StatusOK, w.Code)
	users := decodeList(t, w.Body.Bytes())
	require.Len(t, users, 2)
	assert.Equal(t, float64(lina.ID), users[0]["id"])
	assert.Equal(t, "Lina", users[0]["name"])
	assert.Equal(t, "Max", users[1]["name"])
}

func TestAPIAddUser(t *testing.T) {
	env := setupServer(t)

	w := env.do(http.MethodPost, "/api/users", jsonContentType, `{"name":" Lina "}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	created := decodeObject(t, w.Body.Bytes())
	assert.Equal(t, "Lina", created["name"])
	assert.NotZero(t, created["id"])

	for _, body := range []string{`{}`, `{"name":"   "}`, `{"name":`} {
		w = env.do(http.MethodPost, "/api/users", jsonContentType, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "validation error", decodeObject(t, w.Body.Bytes())["message"], body)
	}

	users, err := env.dm.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAPIListMovies(t *testing.T) {
	env := setupServer(t)
	user := env.createUser(t, "Lina")
	movie := env.createMovie(t, user.ID, "Inception", "Christopher Nolan", "")

	w := env.get(fmt.Sprintf("/api/users/%d/movies", user.ID))

	assert.Equal(t, http.StatusOK, w.Code)
	movies := decodeList(t, w.Body.Bytes())
	require.Len(t, movies, 1)
	assert.Equal(t, float64(movie.ID), movies[0]["id"])
	assert.Equal(t, "Inception", movies[0]["name"])
	assert.Equal(t, float64(*movie.DirectorID), movies[0]["director_id"])
	assert.Equal(t, "Christopher Nolan", movies[0]["director_name"])
	assert.Nil(t, movies[0]["genre_id"])
	assert.Nil(t, movies[0]["genre_name"])
	assert.Equal(t, float64(2000), movies[0]["year"])
	assert.Equal(t, 7.5, movies[0]["rating"])
	assert.Equal(t, float64(user.ID), movies[0]["user_id"])
}

func TestAPIListMoviesUnknownUser(t *testing.T) {
	env := setupServer(t)

	w := env.get("/api/users/99999/movies")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"user not found"}`, w.Body.String())
}

func TestAPIAddMovie(t *testing.T) {
	env := setupServer(t)
	user := env.createUser(t, "Lina")

	w := env.do(http.MethodPost, fmt.Sprintf("/api/users/%d/movies", user.ID), jsonContentType,
		`{"name":"Inception","director":"Christopher Nolan","year":2010,"rating":8.8,"genre":"Sci-Fi"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	created := decodeObject(t, w.Body.Bytes())
	assert.Equal(t, "Inception", created["name"])
	assert.Equal(t, "Christopher Nolan", created["director_name"])
	assert.Equal(t, "Sci-Fi", created["genre_name"])
	assert.Equal(t, float64(2010), created["year"])
	assert.Equal(t, 8.8, created["rating"])
	assert.Equal(t, float64(user.ID), created["user_id"])

	movies, err := env.dm.ListMoviesForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, movies, 1)
}

func TestAPIAddMovieValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing rating", body: `{"name":"Inception","director":"Christopher Nolan","year":2010}`},
		{name: "missing director", body: `{"name":"Inception","year":2010,"rating":8.8}`},
		{name: "malformed year", body: `{"name":"Inception","director":"Christopher Nolan","year":"abc","rating":8.8}`},
		{name: "blank name", body: `{"name":"  ","director":"Christopher Nolan","year":2010,"rating":8.8}`},
		{name: "not json", body: `name=Inception`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupServer(t)
			user := env.createUser(t, "Lina")

			w := env.do(http.MethodPost, fmt.Sprintf("/api/users/%d/movies", user.ID), jsonContentType, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			movies, err := env.dm.ListMoviesForUser(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Empty(t, movies)
		})
	}
}

func TestAPIAddMovieUnknownUser(t *testing.T) {
	env := setupServer(t)

	w := env.do(http.MethodPost, "/api/users/99999/movies", jsonContentType,
		`{"name":"Inception","director":"Christopher Nolan","year":2010,"rating":8.8}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIUpdateMovie(t *testing.T) {
	env := setupServer(t)
	user := env.createUser(t, "Lina")
	movie := env.createMovie(t, user.ID, "Inception", "Christopher Nolan", "Drama")
	target := fmt.Sprintf("/api/users/%d/movies/%d", user.ID, movie.ID)

	w := env.do(http.MethodPatch, target, jsonContentType, `{"rating":9.0}`)
	assert.Equal(t, http.StatusOK, w.Code)
	updated := decodeObject(t, w.Body.Bytes())
	assert.Equal(t, 9.0, updated["rating"])
	assert.Equal(t, "Inception", updated["name"])
	assert.Equal(t, "Christopher Nolan", updated["director_name"])
	assert.Equal(t, "Drama", updated["genre_name"])

	w = env.do(http.MethodPatch, target, jsonContentType, `{"director":"Emma Thomas","genre":""}`)
	assert.Equal(t, http.StatusOK, w.Code)
	updated = decodeObject(t, w.Body.Bytes())
	assert.Equal(t, "Emma Thomas", updated["director_name"])
	assert.Nil(t, updated["genre_name"])

	w = env.do(http.MethodPatch, target, jsonContentType, `{"name":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPatch, fmt.Sprintf("/api/users/%d/movies/99999", user.ID), jsonContentType, `{"rating":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIDeleteMovie(t *testing.T) {
	env := setupServer(t)
	user := env.createUser(t, "Lina")
	other := env.createUser(t, "Other")
	movie := env.createMovie(t, user.ID, "Inception", "Christopher Nolan", "")

	w := env.do(http.MethodDelete, fmt.Sprintf("/api/users/%d/movies/%d", other.ID, movie.ID), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	target := fmt.Sprintf("/api/users/%d/movies/%d", user.ID, movie.ID)
	w = env.do(http.MethodDelete, target, "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := env.dm.GetMovie(context.Background(), movie.ID)
	assert.ErrorIs(t, err, datamanager.ErrNotFound)

	w = env.do(http.MethodDelete, target, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIListReviews(t *testing.T) {
	env := setupServer(t)
	user := env.createUser(t, "Lina")
	movie := env.createMovie(t, user.ID, "Inception", "Christopher Nolan", "")
	_, err := env.dm.AddReview(context.Background(), user.ID, movie.ID, "Mind-bending", 9.5)
	require.NoError(t, err)

	w := env.get(fmt.Sprintf("/api/movies/%d/reviews", movie.ID))
	assert.Equal(t, http.StatusOK, w.Code)
	reviews := decodeList(t, w.Body.Bytes())
	require.Len(t, reviews, 1)
	assert.Equal(t, "Mind-bending", reviews[0]["review_text"])
	assert.Equal(t, 9.5, reviews[0]["rating"])
	assert.Equal(t, float64(user.ID), reviews[0]["user_id"])
	assert.Equal(t, float64(movie.ID), reviews[0]["movie_id"])

	w = env.get("/api/movies/99999/reviews")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

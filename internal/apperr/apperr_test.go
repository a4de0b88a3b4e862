package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MatchesAllKinds(t *testing.T) {
	err := New("product not found", ErrInvalidInput, ErrNotFound)

	assert.EqualError(t, err, "product not found")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestUnavailable_WrapsCause(t *testing.T) {
	err := Unavailable("list cart items", sql.ErrConnDone)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "list cart items")
	assert.Nil(t, Unavailable("noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid input", New("bad", ErrInvalidInput), http.StatusBadRequest},
		{"not found", New("missing", ErrNotFound), http.StatusNotFound},
		{"both kinds", New("unknown product", ErrInvalidInput, ErrNotFound), http.StatusNotFound},
		{"wrapped", fmt.Errorf("add item: %w", New("bad", ErrInvalidInput)), http.StatusBadRequest},
		{"unavailable", Unavailable("db", errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(New("bad", ErrInvalidInput)))
	assert.True(t, IsClientError(New("missing", ErrNotFound)))
	assert.False(t, IsClientError(Unavailable("db", errors.New("boom"))))
}

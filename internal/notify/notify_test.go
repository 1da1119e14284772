package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarkNotifierSend(t *testing.T) {
	requests := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
	}))
	defer srv.Close()

	bark, err := NewBarkNotifier(srv.URL + "/device-key/")
	require.NoError(t, err)
	require.NoError(t, bark.Send(context.Background(), "Task created", "Ping API"))

	got := <-requests
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/device-key", got.URL.Path)
	assert.Equal(t, "Task created", got.URL.Query().Get("title"))
	assert.Equal(t, "Ping API", got.URL.Query().Get("body"))
	assert.Equal(t, "taskdash", got.URL.Query().Get("group"))
}

func TestBarkNotifierErrors(t *testing.T) {
	_, err := NewBarkNotifier("  ")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	bark, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.EqualError(t, bark.Send(context.Background(), "t", "b"), "bark api returned status: 400")
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMultiNotifierDeliversToAll(t *testing.T) {
	first := &stubNotifier{err: errors.New("first down")}
	second := &stubNotifier{}
	multi := NewMultiNotifier(first, second, &NoOpNotifier{})

	err := multi.Send(context.Background(), "t", "b")

	assert.EqualError(t, err, "first down")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 3, multi.Len())
	assert.NoError(t, NewMultiNotifier().Send(context.Background(), "t", "b"))
}

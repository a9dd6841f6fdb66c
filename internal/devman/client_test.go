package devman

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/api/long_polling/", Token: "secret", Timeout: timeout})
	require.NoError(t, err)
	return c
}

func TestPollFound(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reqs <- r.Clone(context.Background())
		_, _ = w.Write([]byte(`{
			"status": "found",
			"new_attempts": [
				{"is_negative": false, "lesson_title": "T1", "lesson_url": "/x", "timestamp": 99.5},
				{"is_negative": true, "lesson_title": "T2", "lesson_url": "/y"}
			],
			"last_attempt_timestamp": 100
		}`))
	}, time.Second)

	res, err := c.Poll(context.Background(), "")
	require.NoError(t, err)
	req := <-reqs
	assert.Equal(t, "Token secret", req.Header.Get("Authorization"))
	_, hadTimestamp := req.URL.Query()["timestamp"]
	assert.False(t, hadTimestamp, "unset cursor must not be sent")

	assert.Equal(t, Found, res.Status)
	assert.Equal(t, Cursor("100"), res.Cursor)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, Attempt{LessonTitle: "T1", LessonURL: "/x", Timestamp: "99.5"}, res.Attempts[0])
	assert.True(t, res.Attempts[1].IsNegative)
}

func TestPollNotFoundSendsCursor(t *testing.T) {
	timestamps := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		timestamps <- r.URL.Query().Get("timestamp")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "timeout", "timestamp_to_request": json.Number("1555493856.2290")})
	}, time.Second)

	res, err := c.Poll(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, "100", <-timestamps)
	assert.Equal(t, NotFound, res.Status)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, Cursor("1555493856.2290"), res.Cursor)
}

func TestPollUnknownStatusWithAttempts(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Cursor
	}{
		{
			name: "last_attempt_timestamp",
			body: `{"status":"negative-ish","new_attempts":[{"is_negative":true,"lesson_title":"T2","lesson_url":"/y"}],"last_attempt_timestamp":200}`,
			want: "200",
		},
		{
			name: "attempt timestamp only",
			body: `{"status":"negative-ish","new_attempts":[{"is_negative":true,"lesson_title":"T2","lesson_url":"/y","timestamp":201.5}]}`,
			want: "201.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, time.Second)

			res, err := c.Poll(context.Background(), "100")
			require.NoError(t, err)
			assert.Equal(t, Found, res.Status)
			assert.Equal(t, tt.want, res.Cursor)
			require.Len(t, res.Attempts, 1)
			assert.True(t, res.Attempts[0].IsNegative)
			assert.Equal(t, "T2", res.Attempts[0].LessonTitle)
		})
	}
}

func TestPollErrorKinds(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, 50*time.Millisecond)
		_, err := c.Poll(context.Background(), "")
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("http error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Invalid token.", http.StatusUnauthorized)
		}, time.Second)
		_, err := c.Poll(context.Background(), "")
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		assert.Equal(t, "Invalid token.", httpErr.Body)
		assert.NotErrorIs(t, err, ErrConnection)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, time.Second)
		_, err := c.Poll(context.Background(), "")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("missing cursor", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"found","new_attempts":[]}`))
		}, time.Second)
		_, err := c.Poll(context.Background(), "")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unknown status without cursor", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"negative-ish","new_attempts":[{"lesson_title":"T2"}]}`))
		}, time.Second)
		_, err := c.Poll(context.Background(), "")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, err := New(Config{URL: url, Token: "secret", Timeout: time.Second})
		require.NoError(t, err)
		_, err = c.Poll(context.Background(), "")
		require.ErrorIs(t, err, ErrConnection)
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}, 5*time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := c.Poll(ctx, "")
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: ""})
	require.Error(t, err)
	_, err = New(Config{URL: "not a url", Token: "x"})
	require.Error(t, err)

	c, err := New(Config{Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.url)
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestCursorUnmarshal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Cursor
	}{
		{`1555493856.2290`, "1555493856.2290"},
		{`"1555493856"`, "1555493856"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var c Cursor
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &c), tt.raw)
		assert.Equal(t, tt.want, c, tt.raw)
	}
	var c Cursor
	require.Error(t, json.Unmarshal([]byte(`{}`), &c))
}

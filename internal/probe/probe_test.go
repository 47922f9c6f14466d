package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func probeServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == http.StatusMovedPermanently || status == http.StatusFound {
			w.Header().Set("Location", "https://elsewhere.example.com")
		}
		w.WriteHeader(status)
	}))
}

func TestHTTPProber_AcceptsSuccess(t *testing.T) {
	srv := probeServer(http.StatusOK)
	defer srv.Close()

	err := NewHTTPProber().Check(context.Background(), srv.URL)
	assert.NoError(t, err)
}

func TestHTTPProber_UsesHEAD(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	err := NewHTTPProber().Check(context.Background(), srv.URL)
	assert.NoError(t, err)
	assert.Equal(t, http.MethodHead, method)
}

func TestHTTPProber_AcceptsRedirects(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusFound} {
		srv := probeServer(status)
		err := NewHTTPProber().Check(context.Background(), srv.URL)
		srv.Close()
		assert.NoError(t, err, "status %d counts as reachable", status)
	}
}

func TestHTTPProber_RejectsOtherStatuses(t *testing.T) {
	srv := probeServer(http.StatusNotFound)
	defer srv.Close()

	err := NewHTTPProber().Check(context.Background(), srv.URL)

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestHTTPProber_NetworkError(t *testing.T) {
	srv := probeServer(http.StatusOK)
	srv.Close() // nothing listening anymore

	err := NewHTTPProber().Check(context.Background(), srv.URL)

	assert.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

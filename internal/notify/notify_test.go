package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/logging"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"SCT12345abc", "https://sctapi.ftqq.com/SCT12345abc.send"},
		{"sctp42tXYZ", "https://42.push.ft07.com/send/sctp42tXYZ.send"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestEndpointRejectsMalformedSctpKey(t *testing.T) {
	_, err := Endpoint("sctpXYZ")
	assert.True(t, internaltypes.IsConfig(err))

	_, err = New("sctpXYZ", logging.Discard())
	assert.True(t, internaltypes.IsConfig(err))
}

func TestNewWithoutKeyLogsOnly(t *testing.T) {
	var buf bytes.Buffer
	n, err := New("", logging.NewLoggerWithWriter(log.InfoLevel, "text", &buf))
	require.NoError(t, err)
	require.IsType(t, &LogOnly{}, n)

	require.NoError(t, n.Notify(context.Background(), "order created", "pay within 10 minutes"))
	assert.Contains(t, buf.String(), "pay within 10 minutes")
}

func TestServerChanNotify(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"code":0,"message":""}`))
	}))
	defer srv.Close()

	n := NewServerChan(srv.URL, logging.Discard())
	require.NoError(t, n.Notify(context.Background(), "订单创建成功", "[pay](http://x)"))
	assert.Equal(t, "订单创建成功", got.Title)
	assert.Equal(t, "[pay](http://x)", got.Desp)
}

func TestServerChanErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":40001,"message":"bad key"}`))
	}))
	defer srv.Close()

	err := NewServerChan(srv.URL, logging.Discard()).Notify(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	assert.Error(t, NewServerChan(down.URL, logging.Discard()).Notify(context.Background(), "t", "b"))
}

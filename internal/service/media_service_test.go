package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/publora/publora/configs"
)

func mp4Header() []byte {
	head := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}
	return append(head, make([]byte, 300)...)
}

func jpegHeader() []byte {
	head := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	return append(head, make([]byte, 300)...)
}

func TestIsVideo_SniffsMP4(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mp4Header())
	}))
	defer srv.Close()

	svc := NewMediaService(config.Config{})

	ok, err := svc.IsVideo(context.Background(), srv.URL+"/clip")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsVideo_RejectsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegHeader())
	}))
	defer srv.Close()

	svc := NewMediaService(config.Config{})

	ok, err := svc.IsVideo(context.Background(), srv.URL+"/cover")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsVideo_ShortBody(t *testing.T) {
	// Files smaller than the sniff window still classify.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'})
	}))
	defer srv.Close()

	svc := NewMediaService(config.Config{})

	ok, err := svc.IsVideo(context.Background(), srv.URL+"/tiny")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsVideo_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewMediaService(config.Config{})

	_, err := svc.IsVideo(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

package main

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsxgame/vsxserver/internal/config"
)

func TestListenOpensOnePlainListenerPerServer(t *testing.T) {
	listeners, err := listen([]config.Server{{Address: "127.0.0.1", Port: 0}, {Address: "127.0.0.1", Port: 0}})
	require.NoError(t, err)
	require.Len(t, listeners, 2)
	for _, l := range listeners {
		_ = l.Close()
	}
}

func TestListenRollsBackAlreadyOpenedListenersOnFailure(t *testing.T) {
	_, err := listen([]config.Server{
		{Address: "127.0.0.1", Port: 0},
		{Address: "127.0.0.1", Certificate: "/does/not/exist.pem", PrivateKey: "/does/not/exist-key.pem"},
	})
	require.Error(t, err)
}

func TestIsTooManyOpenFiles(t *testing.T) {
	require.True(t, isTooManyOpenFiles(syscall.EMFILE))
	require.True(t, isTooManyOpenFiles(&os.SyscallError{Syscall: "accept", Err: syscall.EMFILE}))
	require.False(t, isTooManyOpenFiles(errors.New("boom")))
}

func TestNewLoggerWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vsx.log")
	log, closeLog, err := newLogger(path)
	require.NoError(t, err)
	defer closeLog()
	log.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	log, closeLog, err := newLogger("")
	require.NoError(t, err)
	defer closeLog()
	require.NotNil(t, log)
}

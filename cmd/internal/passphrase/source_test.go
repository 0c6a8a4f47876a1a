package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := NewSource("PASS", "admin keystore")
	s.lookup = fakeEnv(map[string]string{"PASS": "hunter2"})
	s.prompt = func(string) (string, error) { t.Fatalf("prompted despite env"); return "", nil }

	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := NewSource("PASS", "admin keystore")
	s.lookup = fakeEnv(map[string]string{"PASS": "  "})
	_, err := s.Get()
	require.Error(t, err)
}

func TestSourceAllowEmptySkipsPrompt(t *testing.T) {
	s := NewSource("PASS", "admin keystore", AllowEmpty())
	s.lookup = fakeEnv(nil)
	s.prompt = func(string) (string, error) { t.Fatalf("prompted in allow-empty mode"); return "", nil }

	got, err := s.Get()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSourceCachesPrompt(t *testing.T) {
	calls := 0
	s := NewSource("PASS", "admin keystore")
	s.lookup = fakeEnv(nil)
	s.prompt = func(label string) (string, error) {
		calls++
		require.Equal(t, "admin keystore", label)
		return "secret", nil
	}
	for i := 0; i < 3; i++ {
		got, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "secret", got)
	}
	require.Equal(t, 1, calls)

	failing := NewSource("", "admin keystore")
	failing.prompt = func(string) (string, error) { return "", errors.New("no tty") }
	_, err := failing.Get()
	require.EqualError(t, err, "no tty")
}

package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar     string
	label      string
	allowEmpty bool

	// prompt reads a secret from the terminal; replaced in tests.
	prompt func(label string) (string, error)
	lookup func(string) (string, bool)

	once  sync.Once
	value string
	err   error
}

// Option tunes a Source.
type Option func(*Source)

// AllowEmpty accepts an unset variable as the empty passphrase without
// prompting. Dev installs create their keystore that way.
func AllowEmpty() Option {
	return func(s *Source) { s.allowEmpty = true }
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal. label names the secret in prompts
// and errors, e.g. "admin keystore".
func NewSource(envVar, label string, opts ...Option) *Source {
	if strings.TrimSpace(label) == "" {
		label = "keystore"
	}
	s := &Source{
		envVar: strings.TrimSpace(envVar),
		label:  label,
		prompt: promptTerminal,
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached passphrase or resolves it on first use.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" && !s.allowEmpty {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if s.allowEmpty {
			return
		}

		passphrase, err := s.prompt(s.label)
		if err != nil {
			s.err = err
			return
		}
		if strings.TrimSpace(passphrase) == "" {
			s.err = fmt.Errorf("%s passphrase cannot be empty", s.label)
			return
		}
		s.value = passphrase
	})

	return s.value, s.err
}

func promptTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New(label + " passphrase required and no terminal available")
	}
	return readPassword(os.Stderr, fd, label)
}

func readPassword(out io.Writer, fd int, label string) (string, error) {
	fmt.Fprintf(out, "Enter %s passphrase: ", label)
	bytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(bytes), nil
}

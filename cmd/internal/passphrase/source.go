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

// ErrEmpty is returned for empty or whitespace-only passphrases.
var ErrEmpty = errors.New("keystore passphrase cannot be empty")

// Source resolves a keystore passphrase from an environment variable or, on a
// terminal, by prompting the operator. The first result is cached.
type Source struct {
	envVar string
	label  string

	lookupEnv    func(string) (string, bool)
	fd           int
	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
	prompt       io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source that checks envVar before prompting on stdin.
// label names the keystore in prompts and errors ("participant keystore").
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		label:        label,
		lookupEnv:    os.LookupEnv,
		fd:           int(os.Stdin.Fd()),
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
		prompt:       os.Stderr,
	}
}

// Get returns the passphrase. A set environment variable wins; an unset one
// falls back to an interactive prompt, and without a terminal Get fails
// rather than encrypting with an empty secret.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%w: %s is set but empty", ErrEmpty, s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal(s.fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
	}
	fmt.Fprintf(s.prompt, "Enter %s passphrase: ", s.label)
	raw, err := s.readPassword(s.fd)
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	value := string(raw)
	if strings.TrimSpace(value) == "" {
		return "", ErrEmpty
	}
	return value, nil
}

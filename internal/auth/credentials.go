// ABOUTME: File-backed credential persistence with change notifications.
// ABOUTME: Lets a signed-in session survive restarts and observe sign-in/out from other processes.

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// CredentialStore persists the signed-in credential across restarts.
type CredentialStore interface {
	Load() (*Credential, error)
	Save(cred *Credential) error
	Clear() error
}

// FileCredentials stores the credential as a JSON file (0600) and can
// watch it for changes made by other processes.
type FileCredentials struct {
	path   string
	logger *slog.Logger
}

// NewFileCredentials creates a file-backed credential store at path.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{
		path:   path,
		logger: slog.Default().With("component", "credentials"),
	}
}

// Load reads the stored credential. Returns ErrNoCredential when absent.
func (f *FileCredentials) Load() (*Credential, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parsing credential file: %w", err)
	}
	return &cred, nil
}

// Save writes the credential, creating parent directories as needed.
func (f *FileCredentials) Save(cred *Credential) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}

// Clear removes the stored credential. Absent file is not an error.
func (f *FileCredentials) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}

// Watch starts a filesystem watcher on the credential file's directory
// and invokes onChange for every write or removal of the file. It
// returns a stop function; callers must invoke it on teardown.
func (f *FileCredentials) Watch(onChange func()) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the directory, not the file: editors and os.WriteFile
	// replace files, which would drop a file-level watch
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching credential directory: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != f.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					f.logger.Debug("credential file changed", "op", event.Op.String())
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Error("credential watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

// Package git defines the repository metadata lookups extensions use.
package git

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGitOperation wraps failures of a Client. A path outside any repository
// is not a failure: lookups return a nil *Commit.
var ErrGitOperation = errors.New("git operation failed")

// Commit is the subset of commit data written to the output.
type Commit struct {
	Hash        string    `json:"hash"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	Date        time.Time `json:"date"`
	Subject     string    `json:"subject,omitempty"`
}

// Client reads commit metadata. Implementations must be safe for concurrent use.
type Client interface {
	// LastCommit returns the most recent commit touching path, or nil when
	// path is untracked or not inside a repository.
	LastCommit(ctx context.Context, path string) (*Commit, error)
	// Head returns the commit HEAD points at for the repository containing
	// dir, or nil when dir is not inside a repository.
	Head(ctx context.Context, dir string) (*Commit, error)
}

// Errorf returns a formatted error that wraps ErrGitOperation.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}

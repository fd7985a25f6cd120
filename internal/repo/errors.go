package repo

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by CheckoutError when a path does not exist.
var ErrNotFound = errors.New("path not found")

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout error during %s of %s in %s: %v", e.Op, e.Path, e.Repo, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

func checkoutError(op, repo, path string, err error) error {
	return &CheckoutError{Op: op, Repo: repo, Path: path, Err: err}
}

// normalizePath strips the leading slash so "/" becomes the tree root.
func normalizePath(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

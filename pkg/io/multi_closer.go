package pkgio

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Closers collects resources to be closed together.
type Closers struct {
	names   []string
	closers []io.Closer
}

// Add registers c under a name used in error messages.
func (c *Closers) Add(name string, closer io.Closer) {
	c.names = append(c.names, name)
	c.closers = append(c.closers, closer)
}

func (c *Closers) Len() int {
	return len(c.closers)
}

// Close closes every registered resource in reverse order, even after
// failures, and forgets them.
func (c *Closers) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cErr := c.closers[i].Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("error closing %s: %w", c.names[i], cErr))
		}
	}
	c.names, c.closers = nil, nil
	return err
}

// Close closes every closer, even after failures.
func Close(closers ...io.Closer) error {
	var err error
	for i, c := range closers {
		if c == nil {
			continue
		}
		if cErr := c.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("error closing %d-th closer: %w", i, cErr))
		}
	}
	return err
}

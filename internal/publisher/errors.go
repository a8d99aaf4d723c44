package publisher

import "fmt"

// PublishError wraps a failed object store write
type PublishError struct {
	Backend   string
	Container string
	Blob      string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %s/%s to %s: %v", e.Container, e.Blob, e.Backend, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

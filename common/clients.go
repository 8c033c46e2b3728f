package common

import (
	"context"
	"fmt"
	"sync"

	"github.com/whosonfirst/go-reader/v2"
	"github.com/whosonfirst/go-writer/v3"
)

// clientCache keeps one client per URI. Clients are never closed by the cache; see the note in
// doc.go about why buckets and friends are not pooled beyond this.
type clientCache[T any] struct {
	mu      sync.Mutex
	clients map[string]T
}

func (c *clientCache[T]) get(ctx context.Context, uri string, create func(context.Context, string) (T, error)) (T, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[uri]

	if ok {
		return cl, nil
	}

	cl, err := create(ctx, uri)

	if err != nil {
		return cl, err
	}

	if c.clients == nil {
		c.clients = make(map[string]T)
	}

	c.clients[uri] = cl
	return cl, nil
}

var readers = new(clientCache[reader.Reader])
var writers = new(clientCache[writer.Writer])

// NewReader returns a whosonfirst/go-reader.Reader instance for reading stored observation
// features. Instances are cached in memory for repeat lookups.
func NewReader(ctx context.Context, uri string) (reader.Reader, error) {

	r, err := readers.get(ctx, uri, reader.NewReader)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for '%s', %w", uri, err)
	}

	return r, nil
}

// NewWriter returns a whosonfirst/go-writer.Writer instance for writing observation features.
// Instances are cached in memory for repeat lookups.
func NewWriter(ctx context.Context, uri string) (writer.Writer, error) {

	wr, err := writers.get(ctx, uri, writer.NewWriter)

	if err != nil {
		return nil, fmt.Errorf("Failed to create writer for '%s', %w", uri, err)
	}

	return wr, nil
}

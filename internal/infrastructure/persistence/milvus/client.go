// Package milvus implements the vector store on Milvus.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-rag-api/internal/config"
)

var tracer = otel.Tracer("milvus")

// connectTimeout bounds the initial dial so an absent server does not stall startup.
const connectTimeout = 10 * time.Second

type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c := client.Config{Address: addr}
	if cfg.User != "" && cfg.Password != "" {
		c.Username = cfg.User
		c.Password = cfg.Password
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	milvusClient, err := client.NewClient(dialCtx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", addr, err)
	}
	return &Client{milvus: milvusClient, config: cfg}, nil
}

func (c *Client) Milvus() client.Client {
	return c.milvus
}

func (c *Client) Close() error {
	return c.milvus.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.ListCollections(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CollectionName applies the configured prefix and maps the result onto the
// characters Milvus accepts in collection names: letters, digits and underscores,
// not starting with a digit.
func (c *Client) CollectionName(name string) string {
	if c.config.CollectionPrefix != "" {
		name = c.config.CollectionPrefix + "_" + name
	}
	return sanitizeCollectionName(name)
}

func sanitizeCollectionName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.CollectionName(name))
}

func (c *Client) LoadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.CollectionName(name), false)
}

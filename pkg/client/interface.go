package client

import (
	"context"

	"github.com/menta2k/image-captioner/pkg/types"
)

// ModelInvoker performs one synchronous round trip to a model-serving endpoint.
// Body and the returned bytes are JSON in the messages schema. Implementations
// must not retry and should return *types.Error tagged as transport or remote
// service failures.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, in types.InvokeInput) ([]byte, error)
}

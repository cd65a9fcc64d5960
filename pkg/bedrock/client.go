package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/menta2k/image-captioner/pkg/types"
)

// DefaultRegion is used when no region is configured
const DefaultRegion = "us-east-1"

// runtimeAPI is the slice of the bedrockruntime client we use
type runtimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client invokes Bedrock-hosted models. Credentials come from the default AWS chain.
type Client struct {
	runtime runtimeAPI
	region  string
}

// NewClient loads the shared AWS configuration for region and builds a runtime client.
// Retries are disabled; a failed call surfaces immediately.
func NewClient(ctx context.Context, region string) (*Client, error) {
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		runtime: bedrockruntime.NewFromConfig(cfg),
		region:  region,
	}, nil
}

// Region returns the region the client talks to
func (c *Client) Region() string {
	return c.region
}

// InvokeModel sends one InvokeModel call and returns the raw response body
func (c *Client) InvokeModel(ctx context.Context, in types.InvokeInput) ([]byte, error) {
	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(in.ModelID),
		Body:        in.Body,
		ContentType: aws.String(in.ContentType),
		Accept:      aws.String(in.Accept),
	})
	if err != nil {
		return nil, classify(err)
	}
	if out == nil || len(out.Body) == 0 {
		return nil, types.NewError(types.KindResponseShape, "bedrock invoke", fmt.Errorf("empty response body"))
	}
	return out.Body, nil
}

// classify maps SDK failures onto pipeline error kinds. Anything the service
// answered with is a remote error; the rest never reached it.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return types.NewError(types.KindRemoteService, "bedrock invoke",
			fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()))
	}
	return types.NewError(types.KindTransport, "bedrock invoke", err)
}

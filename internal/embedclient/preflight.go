package embedclient

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"

	"vecbatch/internal/vecerr"
)

// ListBedrockModelIDs queries the Bedrock control plane for the ids of
// the foundation models available in region. cmd/vecbatch calls it once
// at startup and logs how many ids it returned; the configured model id
// is not looked up in the result.
func ListBedrockModelIDs(ctx context.Context, region, accessKeyID, secretAccessKey string) ([]string, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, vecerr.Wrap(vecerr.ConfigError, "loading AWS config for bedrock control plane", err)
	}

	client := bedrock.NewFromConfig(awsCfg)
	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Transient, "listing bedrock foundation models", err)
	}

	ids := make([]string, 0, len(out.ModelSummaries))
	for _, m := range out.ModelSummaries {
		if m.ModelId != nil {
			ids = append(ids, *m.ModelId)
		}
	}
	return ids, nil
}

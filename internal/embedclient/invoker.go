package embedclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"vecbatch/internal/vecerr"
)

// invoker issues one formatted payload against the embedding service and
// returns the raw response body, classifying failures into the vecerr
// taxonomy so the scheduler's retry policy can act on them.
type invoker interface {
	invoke(ctx context.Context, payload []byte) ([]byte, error)
	close() error
}

// --- Bedrock ---

// BedrockCredentials selects the authentication strategy for
// bedrockInvoker: IAM static credentials are preferred for their native
// streaming/throttling support; a long-term bearer API key is the
// fallback, mirroring the teacher's dual Bedrock auth strategy.
type BedrockCredentials struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	APIKey          string // bearer fallback, used only if IAM fields are empty
	Endpoint        string // REST endpoint for the bearer fallback
}

type bedrockInvoker struct {
	modelID string
	runtime *bedrockruntime.Client
	rest    *restInvoker // non-nil only when using bearer-token fallback
}

// newBedrockInvoker prefers IAM static credentials; when absent it falls
// back to a bearer-token REST invoker that POSTs each payload to
// creds.Endpoint + "/embed". The model id is not sent on that path.
func newBedrockInvoker(ctx context.Context, modelID string, creds BedrockCredentials, conn ConnectionSettings) (*bedrockInvoker, error) {
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		region := creds.Region
		if region == "" {
			region = "us-east-1"
		}
		httpClient := BuildHTTPClient(conn)
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID, creds.SecretAccessKey, "",
			)),
			awsconfig.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, vecerr.Wrap(vecerr.ConfigError, "loading AWS config", err)
		}
		return &bedrockInvoker{modelID: modelID, runtime: bedrockruntime.NewFromConfig(awsCfg)}, nil
	}

	if creds.APIKey != "" {
		return &bedrockInvoker{modelID: modelID, rest: &restInvoker{
			baseURL:    creds.Endpoint,
			apiKey:     creds.APIKey,
			httpClient: BuildHTTPClient(conn),
		}}, nil
	}

	return nil, vecerr.New(vecerr.ConfigError, "bedrock requires either (access_key_id + secret_access_key) or api_key")
}

func (b *bedrockInvoker) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if b.rest != nil {
		return b.rest.invoke(ctx, payload)
	}

	out, err := b.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &b.modelID,
		Body:        payload,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		var throttle *brtypes.ThrottlingException
		if errors.As(err, &throttle) {
			return nil, vecerr.Wrap(vecerr.Throttling, "bedrock throttled the request", err).WithCode("ThrottlingException")
		}
		var validation *brtypes.ValidationException
		if errors.As(err, &validation) {
			return nil, vecerr.Wrap(vecerr.ConfigError, "bedrock rejected the request", err)
		}
		return nil, vecerr.Wrap(vecerr.Transient, "bedrock invocation failed", err)
	}
	return out.Body, nil
}

func (b *bedrockInvoker) close() error {
	if b.rest != nil {
		return b.rest.close()
	}
	return nil
}

func strPtr(s string) *string { return &s }

// --- REST (Cohere-shaped) ---

// restInvoker issues a bearer-token REST call against a single `embed`
// style endpoint, grounded on the teacher's CohereClient.Embed.
type restInvoker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newRESTInvoker(baseURL, apiKey string, conn ConnectionSettings) *restInvoker {
	return &restInvoker{baseURL: baseURL, apiKey: apiKey, httpClient: BuildHTTPClient(conn)}
}

func (r *restInvoker) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Permanent, "building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Transient, "embed request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vecerr.Wrap(vecerr.Transient, "reading embed response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, vecerr.New(vecerr.Throttling, fmt.Sprintf("embed service returned %d", resp.StatusCode)).WithCode("ThrottlingException")
	case resp.StatusCode >= 500:
		return nil, vecerr.New(vecerr.Transient, fmt.Sprintf("embed service returned %d: %s", resp.StatusCode, vecerr.Preview(string(body), 200)))
	case resp.StatusCode >= 400:
		return nil, vecerr.New(vecerr.ConfigError, fmt.Sprintf("embed service rejected request (%d): %s", resp.StatusCode, vecerr.Preview(string(body), 200)))
	}
	return body, nil
}

func (r *restInvoker) close() error { return nil }

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/pkg/provider"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager
// operations. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

// defaultAWSVarName names the exported variable when the secret payload
// is plaintext rather than JSON and no override is configured.
const defaultAWSVarName = "AWS_SECRET_VALUE"

// AWSProvider retrieves one named secret with a single GetSecretValue
// call. A JSON payload fans out into one variable per key; a plaintext
// payload becomes a single variable.
type AWSProvider struct {
	cfg    config.AWSSettings
	logger *logging.Logger
	client SecretsManagerClientAPI

	cache map[string]string
}

// AWSProviderOption configures an AWSProvider.
type AWSProviderOption func(*AWSProvider)

// WithSecretsManagerClient sets a custom Secrets Manager client (for
// testing).
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSProviderOption {
	return func(p *AWSProvider) { p.client = client }
}

// NewAWSProvider creates the AWS Secrets Manager adapter. The SDK
// client is built lazily at Authenticate so a disabled provider never
// touches the credential chain.
func NewAWSProvider(cfg config.AWSSettings, logger *logging.Logger, opts ...AWSProviderOption) *AWSProvider {
	p := &AWSProvider{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "aws".
func (a *AWSProvider) Name() string { return "aws" }

// EnvPrefix returns the configured variable-name prefix.
func (a *AWSProvider) EnvPrefix() string { return a.cfg.Prefix }

// Enabled reports whether AWS_SECRETS_ENABLED was set.
func (a *AWSProvider) Enabled() bool { return a.cfg.Enable == config.ToggleOn }

// Authenticate loads the standard AWS credential chain (env vars,
// shared config, instance role, ECS task role, IRSA). No remote call is
// made here; bad credentials surface as a FetchError on the first API
// call instead.
func (a *AWSProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	if a.cfg.SecretName == "" {
		return nil, sberrors.ConfigError{
			Provider:   a.Name(),
			Field:      "AWS_SECRET_NAME",
			Message:    "secret name or ARN is required",
			Suggestion: "Set AWS_SECRET_NAME to the Secrets Manager secret to load",
		}
	}

	if a.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if a.cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.Region))
		}
		// Static credentials exist for LocalStack-style endpoints only.
		if a.cfg.Endpoint != "" && a.cfg.AccessKeyID != "" && a.cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, sberrors.AuthError{
				Provider:   a.Name(),
				Method:     "credential-chain",
				Message:    "cannot load AWS configuration",
				Suggestion: "Check AWS_REGION and the credential chain (env vars, instance role, IRSA)",
				Err:        err,
			}
		}

		var clientOpts []func(*secretsmanager.Options)
		if a.cfg.Endpoint != "" {
			endpoint := a.cfg.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		a.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	}

	return &provider.AuthSession{Method: "credential-chain", Identity: a.cfg.SecretName}, nil
}

// ResolveNames performs the single GetSecretValue call and returns the
// variable names the payload fans out to.
func (a *AWSProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: &a.cfg.SecretName}
	if a.cfg.VersionID != "" {
		input.VersionId = &a.cfg.VersionID
	}
	if a.cfg.VersionStage != "" {
		input.VersionStage = &a.cfg.VersionStage
	}

	out, err := a.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, sberrors.FetchError{
			Provider: a.Name(),
			Name:     a.cfg.SecretName,
			Message:  "GetSecretValue failed",
			Err:      err,
		}
	}
	if out.SecretString == nil {
		return nil, sberrors.FormatError{
			Provider: a.Name(),
			Name:     a.cfg.SecretName,
			Message:  "secret has no string payload (binary secrets are not supported)",
		}
	}

	a.cache = fanOut(a.Name(), a.cfg.SecretName, *out.SecretString, a.varName())
	names := make([]string, 0, len(a.cache))
	for name := range a.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (a *AWSProvider) varName() string {
	if a.cfg.VarName != "" {
		return a.cfg.VarName
	}
	return defaultAWSVarName
}

// fanOut maps a secret payload to variable names: one per key for a
// JSON object, a single configurably-named variable for plaintext.
func fanOut(providerName, secretName, payload, plainVar string) map[string]string {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err == nil {
		result := make(map[string]string, len(doc))
		for key, raw := range doc {
			switch val := raw.(type) {
			case string:
				result[key] = val
			case nil:
				result[key] = ""
			default:
				result[key] = fmt.Sprint(val)
			}
		}
		return result
	}
	return map[string]string{plainVar: payload}
}

// Fetch serves one key from the payload retrieved during ResolveNames.
func (a *AWSProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	value, ok := a.cache[name]
	if !ok {
		return "", sberrors.FetchError{
			Provider: a.Name(),
			Name:     name,
			Message:  "key not present in the secret payload",
		}
	}
	return value, nil
}

// HealthCheck reports whether the secret is describable with the
// current credentials.
func (a *AWSProvider) HealthCheck(ctx context.Context) bool {
	if a.client == nil {
		if _, err := a.Authenticate(ctx); err != nil {
			return false
		}
	}
	_, err := a.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: &a.cfg.SecretName,
	})
	return err == nil
}

// Package secret resolves secret values from environment variables or AWS
// Systems Manager Parameter Store. Configuration values written as
// "ssm:/path/name" are replaced by the parameter's decrypted value at
// startup.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// RefPrefix marks a configuration value as an SSM parameter reference.
const RefPrefix = "ssm:"

// envPrefix namespaces environment variables derived from parameter names.
const envPrefix = "RAGDESK_"

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches SecureString parameters from Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by client.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// NewSSMResolverFromEnv builds an SSM client from the default AWS credential
// chain. An empty region defers to AWS_REGION and the shared config.
func NewSSMResolverFromEnv(ctx context.Context, region string) (*SSMResolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secret: loading AWS config: %w", err)
	}

	return NewSSMResolver(ssm.NewFromConfig(cfg)), nil
}

// Resolve retrieves a parameter with decryption.
func (r *SSMResolver) Resolve(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secret: ssm get parameter %q: %w", name, err)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secret: ssm parameter %q has no value", name)
	}

	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables named after the
// last path segment: "/ragdesk/encryption-key" reads RAGDESK_ENCRYPTION_KEY.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a Resolver over the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// Resolve reads the variable derived from name.
func (r *EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)

	val, ok := r.lookup(envName)
	if !ok || val == "" {
		return "", fmt.Errorf("secret: environment variable %q (from param %q) is not set", envName, name)
	}

	return val, nil
}

// paramNameToEnvVar converts "/ragdesk/encryption-key" to
// "RAGDESK_ENCRYPTION_KEY".
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]

	return envPrefix + strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// IsRef reports whether v is an SSM reference.
func IsRef(v string) bool {
	return strings.HasPrefix(v, RefPrefix)
}

// ResolveRefs replaces every referenced value in place. Plain values are
// left untouched; the first failure is returned.
func ResolveRefs(ctx context.Context, r Resolver, values ...*string) error {
	for _, v := range values {
		if v == nil || !IsRef(*v) {
			continue
		}

		resolved, err := r.Resolve(ctx, strings.TrimPrefix(*v, RefPrefix))
		if err != nil {
			return err
		}

		*v = resolved
	}

	return nil
}

// HasRefs reports whether any value is an SSM reference.
func HasRefs(values ...string) bool {
	for _, v := range values {
		if IsRef(v) {
			return true
		}
	}

	return false
}

package paramstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
)

// Client reads secrets from AWS SSM Parameter Store
type Client struct {
	api ssmiface.SSMAPI
}

// New creates a Client with the given SSM API implementation
func New(api ssmiface.SSMAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewFromEnv creates a Client using the default aws session or panics
func NewFromEnv() *Client {
	awsSession := session.Must(session.NewSession())
	return &Client{api: ssm.New(awsSession)}
}

// GetParameter returns the decrypted value of name
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// GetUnder reads each of names from below prefix, keyed by name
func (c *Client) GetUnder(ctx context.Context, prefix string, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, n := range names {
		v, err := c.GetParameter(ctx, path.Join("/", prefix, n))
		if err != nil {
			return nil, err
		}
		values[n] = v
	}
	return values, nil
}

package awsclient

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/defaults"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/rs/zerolog"
)

const roleSessionName = "hivesync-replica"

// CredentialSource names the provider chain selected for a client.
type CredentialSource string

// Credential sources, in precedence order.
const (
	SourceAssumedRole CredentialSource = "assumed-role"
	SourceSecretStore CredentialSource = "secret-store"
	SourceDefault     CredentialSource = "default"
)

// ChainBuilderConfig configures a ChainBuilder.
type ChainBuilderConfig struct {
	// SecretStore is a shared credentials file holding replica keys.
	SecretStore string
	// SecretStoreProfile selects the profile inside SecretStore.
	SecretStoreProfile string

	// Base is the shared SDK configuration. It is copied, never modified.
	Base *aws.Config

	Logger zerolog.Logger

	// NewSTS builds the STS client used to assume roles. Defaults to sts.New.
	NewSTS func(cfg *aws.Config) (stscreds.AssumeRoler, error)
}

// ChainBuilder composes credential provider chains. Each chain resolves
// lazily on first use; nothing is cached here.
type ChainBuilder struct {
	secretStore string
	profile     string
	base        *aws.Config
	logger      zerolog.Logger
	newSTS      func(cfg *aws.Config) (stscreds.AssumeRoler, error)
}

// NewChainBuilder creates a ChainBuilder.
func NewChainBuilder(cfg ChainBuilderConfig) *ChainBuilder {
	b := &ChainBuilder{
		secretStore: cfg.SecretStore,
		profile:     cfg.SecretStoreProfile,
		base:        cfg.Base,
		logger:      cfg.Logger.With().Str("component", "credential-chain").Logger(),
		newSTS:      cfg.NewSTS,
	}
	if b.base == nil {
		b.base = aws.NewConfig()
	}
	if b.newSTS == nil {
		b.newSTS = newSTSClient
	}
	return b
}

// Build returns lazily evaluated credentials for opts.
func (b *ChainBuilder) Build(opts Options) (*credentials.Credentials, error) {
	source, providers, err := b.Providers(opts)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Str("source", string(source)).Int("providers", len(providers)).Msg("Creating credential chain")
	return credentials.NewChainCredentials(providers), nil
}

// Providers selects the provider chain for opts:
//   - assumed role when opts.AssumedRole is set,
//   - the secret store followed by the default chain when configured,
//   - otherwise the default environment/instance identity chain.
func (b *ChainBuilder) Providers(opts Options) (CredentialSource, []credentials.Provider, error) {
	switch {
	case opts.AssumedRole != "":
		rc := b.roleConfig(opts)
		stsClient, err := b.newSTS(rc.sdk)
		if err != nil {
			return "", nil, fmt.Errorf("assume role %s: %w", rc.roleARN, err)
		}
		return SourceAssumedRole, []credentials.Provider{
			&stscreds.AssumeRoleProvider{
				Client:          stsClient,
				RoleARN:         rc.roleARN,
				RoleSessionName: roleSessionName,
				Duration:        rc.duration,
				ExpiryWindow:    stscreds.DefaultDuration / 3,
			},
		}, nil

	case b.secretStore != "":
		providers := []credentials.Provider{
			&credentials.SharedCredentialsProvider{Filename: b.secretStore, Profile: b.profile},
		}
		return SourceSecretStore, append(providers, b.defaultProviders()...), nil
	}

	return SourceDefault, b.defaultProviders(), nil
}

// roleConfig is derived from the base configuration for one role exchange.
type roleConfig struct {
	sdk      *aws.Config
	roleARN  string
	duration time.Duration
}

func (b *ChainBuilder) roleConfig(opts Options) roleConfig {
	sdk := b.base.Copy()
	if aws.StringValue(sdk.Region) == "" {
		sdk.Region = aws.String(USEast1)
	}
	duration := opts.AssumedRoleDuration
	if duration <= 0 {
		duration = DefaultAssumeRoleDuration
	}
	return roleConfig{sdk: sdk, roleARN: opts.AssumedRole, duration: duration}
}

func (b *ChainBuilder) defaultProviders() []credentials.Provider {
	cfg := defaults.Config()
	cfg.MergeIn(b.base)
	return defaults.CredProviders(cfg, defaults.Handlers())
}

func newSTSClient(cfg *aws.Config) (stscreds.AssumeRoler, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create sts session: %w", err)
	}
	return sts.New(sess), nil
}

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	CredentialEnvLive    = "live"
	CredentialEnvSandbox = "sandbox"
)

// Policy is the hot-reloadable part of the configuration.
type Policy struct {
	ArtifactPolicy string       `mapstructure:"artifactPolicy"`
	Credentials    []Credential `mapstructure:"credentials"`
}

// Credential is one entry of the employment API allow-list.
// Exactly one of Token, TokenSHA256 or TokenBcrypt is set.
type Credential struct {
	Environment string `mapstructure:"environment"`
	Token       string `mapstructure:"token"`
	TokenSHA256 string `mapstructure:"token_sha256"`
	TokenBcrypt string `mapstructure:"token_bcrypt"`
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(hashPlainTokens(normalizePolicy(p)))
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("policy.config")

	v := viper.New()
	if path := strings.TrimSpace(os.Getenv("TAXVERIFY_POLICY_FILE")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/taxverify")
		v.AddConfigPath("/var/lib/taxverify/config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TAXVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := Policy{
		ArtifactPolicy: cfg.Ingest.ArtifactPolicy,
		Credentials:    credentialsFromConfig(cfg),
	}

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
		fileFound = false
	}

	policy, err := readPolicy(v, base)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if !fileFound {
		log.Info("no policy file found, using environment", zap.Int("credentials", len(policy.Credentials)))
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPolicy(v, base)
		if err != nil {
			log.Warn("policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded",
			zap.String("file", e.Name),
			zap.String("artifact_policy", updated.ArtifactPolicy),
			zap.Int("credentials", len(updated.Credentials)),
		)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return Policy{ArtifactPolicy: ArtifactPolicyStrict}
	}
	value, ok := h.current.Load().(Policy)
	if !ok {
		return Policy{ArtifactPolicy: ArtifactPolicyStrict}
	}
	return value
}

func readPolicy(v *viper.Viper, base Policy) (Policy, error) {
	var p Policy
	if err := v.UnmarshalKey("policy", &p); err != nil {
		return Policy{}, err
	}
	if strings.TrimSpace(p.ArtifactPolicy) == "" {
		p.ArtifactPolicy = base.ArtifactPolicy
	}
	p.Credentials = append(p.Credentials, base.Credentials...)
	p = normalizePolicy(p)
	if err := validatePolicy(p); err != nil {
		return Policy{}, err
	}
	return hashPlainTokens(p), nil
}

func credentialsFromConfig(cfg Config) []Credential {
	var out []Credential
	if token := strings.TrimSpace(cfg.Credentials.LiveToken); token != "" {
		out = append(out, Credential{Environment: CredentialEnvLive, Token: token})
	}
	if token := strings.TrimSpace(cfg.Credentials.SandboxToken); token != "" {
		out = append(out, Credential{Environment: CredentialEnvSandbox, Token: token})
	}
	return out
}

func normalizePolicy(p Policy) Policy {
	p.ArtifactPolicy = NormalizeArtifactPolicy(p.ArtifactPolicy)
	creds := make([]Credential, 0, len(p.Credentials))
	for _, c := range p.Credentials {
		c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
		c.Token = strings.TrimSpace(c.Token)
		c.TokenSHA256 = strings.ToLower(strings.TrimSpace(c.TokenSHA256))
		c.TokenBcrypt = strings.TrimSpace(c.TokenBcrypt)
		creds = append(creds, c)
	}
	p.Credentials = creds
	return p
}

func validatePolicy(p Policy) error {
	for i, c := range p.Credentials {
		switch c.Environment {
		case CredentialEnvLive, CredentialEnvSandbox:
		default:
			return fmt.Errorf("policy.credentials[%d]: unknown environment %q", i, c.Environment)
		}
		set := 0
		for _, v := range []string{c.Token, c.TokenSHA256, c.TokenBcrypt} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("policy.credentials[%d]: exactly one of token, token_sha256, token_bcrypt is required", i)
		}
		if c.TokenSHA256 != "" && len(c.TokenSHA256) != 64 {
			return fmt.Errorf("policy.credentials[%d]: token_sha256 must be 64 hex characters", i)
		}
	}
	return nil
}

// hashPlainTokens replaces plain tokens with their SHA-256 so the raw secret
// is not kept in memory past load.
func hashPlainTokens(p Policy) Policy {
	creds := make([]Credential, 0, len(p.Credentials))
	for _, c := range p.Credentials {
		if c.Token != "" {
			c.TokenSHA256 = HashToken(c.Token)
			c.Token = ""
		}
		creds = append(creds, c)
	}
	p.Credentials = creds
	return p
}

// HashToken is the hex SHA-256 of a bearer token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

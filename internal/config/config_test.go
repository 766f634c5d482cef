package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ARTIFACT_POLICY", "")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.Port != "3001" {
		t.Fatalf("expected default port 3001, got %q", cfg.Port)
	}
	if cfg.Ingest.ArtifactPolicy != ArtifactPolicyStrict {
		t.Fatalf("expected strict artifact policy, got %q", cfg.Ingest.ArtifactPolicy)
	}
	if cfg.Webhook.TimeoutSeconds != 10 {
		t.Fatalf("expected 10s webhook timeout, got %d", cfg.Webhook.TimeoutSeconds)
	}
	if cfg.Webhook.MaxAttempts != 5 {
		t.Fatalf("expected 5 webhook attempts, got %d", cfg.Webhook.MaxAttempts)
	}
	if cfg.Billing.Amount != "59.98" || cfg.Billing.Client != "employer_com" {
		t.Fatalf("unexpected billing defaults: %+v", cfg.Billing)
	}
}

func TestNormalizeArtifactPolicy(t *testing.T) {
	cases := map[string]string{
		"":            ArtifactPolicyStrict,
		"STRICT":      ArtifactPolicyStrict,
		" permissive": ArtifactPolicyPermissive,
		"anything":    ArtifactPolicyStrict,
	}
	for in, want := range cases {
		if got := NormalizeArtifactPolicy(in); got != want {
			t.Fatalf("NormalizeArtifactPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPolicyHolderMergesFileAndEnvCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	body := []byte(`policy:
  artifactPolicy: permissive
  credentials:
    - environment: live
      token_sha256: "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("TAXVERIFY_POLICY_FILE", path)

	cfg := Config{
		Ingest:      IngestConfig{ArtifactPolicy: ArtifactPolicyStrict},
		Credentials: CredentialConfig{SandboxToken: "sandbox-token"},
	}
	holder, err := NewPolicyHolder(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new policy holder: %v", err)
	}

	policy := holder.Get()
	if policy.ArtifactPolicy != ArtifactPolicyPermissive {
		t.Fatalf("expected permissive policy from file, got %q", policy.ArtifactPolicy)
	}
	if len(policy.Credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(policy.Credentials))
	}
	if policy.Credentials[1].Environment != CredentialEnvSandbox || policy.Credentials[1].TokenSHA256 != HashToken("sandbox-token") {
		t.Fatalf("expected env sandbox credential last, got %+v", policy.Credentials[1])
	}
}

func TestPolicyHolderRejectsInvalidCredential(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	body := []byte(`policy:
  credentials:
    - environment: staging
      token: abc
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("TAXVERIFY_POLICY_FILE", path)

	if _, err := NewPolicyHolder(Config{}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown credential environment")
	}
}

func TestStaticPolicyHolderHashesPlainTokens(t *testing.T) {
	holder := NewStaticPolicyHolder(Policy{Credentials: []Credential{{
		Environment: "LIVE",
		Token:       " live-token ",
	}}})

	cred := holder.Get().Credentials[0]
	if cred.Token != "" {
		t.Fatalf("expected plain token to be cleared")
	}
	if cred.Environment != CredentialEnvLive || cred.TokenSHA256 != HashToken("live-token") {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestValidatePolicyRequiresSingleTokenForm(t *testing.T) {
	err := validatePolicy(Policy{Credentials: []Credential{{
		Environment: CredentialEnvLive,
		Token:       "a",
		TokenBcrypt: "$2a$10$abc",
	}}})
	if err == nil {
		t.Fatalf("expected error when two token forms are set")
	}
}

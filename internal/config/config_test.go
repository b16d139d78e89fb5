package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", strings.Repeat("a", 32))
	t.Setenv("REFRESH_TOKEN_SECRET", strings.Repeat("b", 32))
	t.Setenv("REFRESH_TOKEN_PEPPER", "pepper")
	t.Setenv("KAKAO_CLIENT_ID", "kakao-app")
	t.Setenv("KAKAO_CLIENT_SECRET", "kakao-secret")
	t.Setenv("KAKAO_REDIRECT_URL", "https://example.com/auth/kakao/callback")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 720*time.Hour {
		t.Fatalf("unexpected refresh TTL: %v", cfg.RefreshTokenTTL)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("unexpected driver: %q", cfg.DBDriver)
	}
	if !cfg.Kakao.Enabled() || cfg.Naver.Enabled() {
		t.Fatalf("unexpected provider enablement: kakao=%v naver=%v", cfg.Kakao.Enabled(), cfg.Naver.Enabled())
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing access secret")
	}
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET", strings.Repeat("a", 32))
	if _, err := Load(); err == nil {
		t.Fatal("expected error when access and refresh secrets match")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadRequiresProviderCompleteness(t *testing.T) {
	setValidEnv(t)
	t.Setenv("KAKAO_CLIENT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for kakao client without secret")
	}
}

func TestLoadRequiresAtLeastOneProvider(t *testing.T) {
	setValidEnv(t)
	t.Setenv("KAKAO_CLIENT_ID", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
}

func TestAvatarMirrorRequiresS3Settings(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AVATAR_MIRROR_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for avatar mirroring without S3 settings")
	}
	t.Setenv("S3_BUCKET", "avatars")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example.com")
	if _, err := Load(); err != nil {
		t.Fatalf("expected avatar config to validate, got %v", err)
	}
}

func TestClassifyConfigLoadError(t *testing.T) {
	if got := classifyConfigLoadError(nil); got != "none" {
		t.Fatalf("expected none, got %q", got)
	}
	setValidEnv(t)
	t.Setenv("REFRESH_TOKEN_PEPPER", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := classifyConfigLoadError(err); got != "validation" {
		t.Fatalf("expected validation, got %q", got)
	}
}

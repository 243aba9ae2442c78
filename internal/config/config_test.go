package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func validTestConfig() Config {
	cfg := Default()
	cfg.MasterKey = strings.Repeat("a", 64)
	cfg.BaseURL = "http://localhost:8080"
	return cfg
}

func TestValidate_DefaultsPass(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid default config, got error: %v", err)
	}
}

func TestValidate_RequiresS3SettingsForS3Backend(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.BlobBackend = BackendS3

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for s3 backend without settings")
	}
	msg := err.Error()
	for _, expected := range []string{
		"AWS_ENDPOINT_URL_S3",
		"BUCKET_NAME",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.BlobBackend = "floppy"
	cfg.RateLimit.RPS = 0
	cfg.RateLimit.Burst = -1
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if len(verr.Errors) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(verr.Errors), verr.Errors)
	}
}

func testValidate_RejectsInvalidMasterKeyLengths(t *rapid.T) {
	cfg := validTestConfig()
	n := rapid.IntRange(1, 128).Filter(func(n int) bool { return n != 64 }).Draw(t, "master_key_len")
	cfg.MasterKey = strings.Repeat("a", n)

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error for %d-char master key", n)
	}
	if !strings.Contains(err.Error(), "MASTER_KEY") {
		t.Fatalf("expected error mentioning MASTER_KEY, got: %v", err)
	}
}

func TestValidate_RejectsInvalidMasterKeyLengths(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsInvalidMasterKeyLengths)
}

func FuzzValidate_RejectsInvalidMasterKeyLengths(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testValidate_RejectsInvalidMasterKeyLengths))
}

func TestValidate_RejectsNonHexMasterKey(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.MasterKey = strings.Repeat("z", 64)
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "hex") {
		t.Fatalf("expected hex error, got %v", err)
	}
}

func TestValidate_EmptyMasterKeyMeansUnencrypted(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.MasterKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty master key should be allowed: %v", err)
	}
	if cfg.Encrypted() {
		t.Fatal("Encrypted() should be false without a master key")
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := load(Flags{}, envMap(map[string]string{
		"LISTEN_ADDR":                 ":9999",
		"DATABASE_PATH":               "/tmp/notes.db",
		"RATE_LIMIT_RPS":              "2.5",
		"RATE_LIMIT_BURST":            "7",
		"RATE_LIMIT_CLEANUP_INTERVAL": "5m",
		"LOG_LEVEL":                   "warn",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.DatabasePath != "/tmp/notes.db" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.BaseURL != "http://localhost:9999" {
		t.Fatalf("BaseURL should default from listen addr, got %q", cfg.BaseURL)
	}
	rl := cfg.RateLimiterConfig()
	if rl.RPS != 2.5 || rl.Burst != 7 || rl.CleanupInterval != 5*time.Minute {
		t.Fatalf("rate limit env not applied: %+v", rl)
	}
}

func TestLoad_BadNumbersKeepPreviousLayer(t *testing.T) {
	t.Parallel()
	cfg, err := load(Flags{}, envMap(map[string]string{
		"RATE_LIMIT_RPS":              "fast",
		"RATE_LIMIT_BURST":            "lots",
		"RATE_LIMIT_CLEANUP_INTERVAL": "soon",
		"S3_USE_PATH_STYLE":           "maybe",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.RateLimit != def.RateLimit {
		t.Fatalf("bad values should keep defaults: got %+v want %+v", cfg.RateLimit, def.RateLimit)
	}
	if cfg.S3.UsePathStyle {
		t.Fatal("unparseable bool should keep false")
	}
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.toml")
	content := `
listen_addr = ":7000"
database_path = "/srv/notes.db"
blob_backend = "s3"

[s3]
endpoint = "http://minio:9000"
bucket_name = "images"
access_key_id = "id"
secret_access_key = "secret"
use_path_style = true

[rate_limit]
rps = 1.5
burst = 3
cleanup_interval = "30m"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(Flags{ConfigFile: path}, envMap(map[string]string{"DATABASE_PATH": "/env/notes.db"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("file listen_addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "/env/notes.db" {
		t.Fatalf("env should win over file: %q", cfg.DatabasePath)
	}
	if cfg.BlobBackend != BackendS3 || !cfg.S3.UsePathStyle || cfg.S3.BucketName != "images" {
		t.Fatalf("s3 section not applied: %+v", cfg.S3)
	}
	if cfg.S3.Region != "auto" {
		t.Fatalf("region default should survive the file overlay: %q", cfg.S3.Region)
	}
	if cfg.RateLimit.CleanupInterval != 30*time.Minute {
		t.Fatalf("duration not decoded: %v", cfg.RateLimit.CleanupInterval)
	}
	s3 := cfg.S3StoreConfig()
	if s3.Endpoint != "http://minio:9000" || s3.BucketName != "images" {
		t.Fatalf("S3StoreConfig mismatch: %+v", s3)
	}

	cfg, err = load(Flags{ConfigFile: path, ListenAddr: ":1234", NoS3: true}, envMap(nil))
	if err != nil {
		t.Fatalf("load with flags: %v", err)
	}
	if cfg.ListenAddr != ":1234" {
		t.Fatalf("flag should win: %q", cfg.ListenAddr)
	}
	if cfg.BlobBackend != BackendLocal || !cfg.NoS3 {
		t.Fatalf("--no-s3 should force the local backend, got %q", cfg.BlobBackend)
	}
}

func TestLoad_MissingOrBrokenFile(t *testing.T) {
	t.Parallel()
	if _, err := load(Flags{ConfigFile: filepath.Join(t.TempDir(), "absent.toml")}, envMap(nil)); err == nil {
		t.Fatal("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("listen_addr = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := load(Flags{ConfigFile: path}, envMap(nil))
	if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.NoS3 = true
	var sb strings.Builder
	cfg.PrintStartupSummary(&sb)
	out := sb.String()
	for _, want := range []string{"--no-s3", "encrypted", cfg.ListenAddr} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

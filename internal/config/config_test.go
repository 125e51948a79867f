package config

import "testing"

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 0},
		Index: IndexConfig{Addrs: []string{"localhost:6379"}},
		Items: ItemsConfig{SQLitePath: "/tmp/items.db"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingIndexAddrs(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Index: IndexConfig{Addrs: []string{}},
		Items: ItemsConfig{SQLitePath: "/tmp/items.db"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing index addrs")
	}
}

func TestValidate_MissingSQLitePath(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Index: IndexConfig{Addrs: []string{"localhost:6379"}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing sqlite path")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Index: IndexConfig{Addrs: []string{"localhost:6379"}},
		Items: ItemsConfig{SQLitePath: "/tmp/items.db"},
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Index.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Index.ReadinessTimeout)
	}
	if cfg.Index.Collection != "captured_items" {
		t.Errorf("expected Collection='captured_items', got %q", cfg.Index.Collection)
	}
	if cfg.Index.KeyPrefix != "stashkit:" {
		t.Errorf("expected KeyPrefix='stashkit:', got %q", cfg.Index.KeyPrefix)
	}
	if cfg.Index.HNSWM != 16 {
		t.Errorf("expected HNSWM=16, got %d", cfg.Index.HNSWM)
	}
	if cfg.Index.HNSWEFConstruct != 200 {
		t.Errorf("expected HNSWEFConstruct=200, got %d", cfg.Index.HNSWEFConstruct)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Embedding.MaxRetries)
	}
	if cfg.Embedding.Cache.KVTTLHours != 720 {
		t.Errorf("expected KVTTLHours=720, got %d", cfg.Embedding.Cache.KVTTLHours)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected Workers=4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.RetrySweepCron != "*/10 * * * *" {
		t.Errorf("expected default sweep cron, got %q", cfg.Pipeline.RetrySweepCron)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("expected DefaultLimit=10, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.SnippetMaxLength != 200 {
		t.Errorf("expected SnippetMaxLength=200, got %d", cfg.Search.SnippetMaxLength)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index: IndexConfig{ReadinessTimeout: 15, Collection: "notes", KeyPrefix: "custom:", HNSWM: 32, HNSWEFConstruct: 400},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-large", Dimensions: 3072, MaxRetries: 5,
		},
		Pipeline: PipelineConfig{Workers: 8, RetrySweepCron: "0 * * * *", RetryBatchSize: 10},
		Search:   SearchConfig{DefaultLimit: 25, SnippetMaxLength: 400},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Index.Collection != "notes" {
		t.Errorf("expected Collection='notes', got %q", cfg.Index.Collection)
	}
	if cfg.Index.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Index.KeyPrefix)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("expected model override kept, got %q", cfg.Embedding.Model)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Search.DefaultLimit != 25 {
		t.Errorf("expected DefaultLimit=25, got %d", cfg.Search.DefaultLimit)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("STASHKIT_TEST_KEY", "secret-value")

	in := []byte("api_key: ${STASHKIT_TEST_KEY}\nmodel: ${STASHKIT_TEST_MODEL:-text-embedding-3-small}\n")
	got := string(expandEnvVars(in))

	want := "api_key: secret-value\nmodel: text-embedding-3-small\n"
	if got != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	in := []byte("password: ${STASHKIT_TEST_UNSET}\n")
	got := string(expandEnvVars(in))

	if got != "password: \n" {
		t.Errorf("expandEnvVars = %q, want empty substitution", got)
	}
}

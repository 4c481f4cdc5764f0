package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptsMissingFileKeepsDefaults(t *testing.T) {
	prompts, err := LoadPrompts(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if prompts.Greeting != DefaultPrompts().Greeting {
		t.Error("defaults not returned on missing file")
	}
}

func TestLoadPromptsOverridesSubset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	body := "greeting: Bonjour\nsingle_file: 'Analyze %PATH% for %INPUT%'\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	prompts, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if prompts.Greeting != "Bonjour" {
		t.Errorf("greeting = %q, want override", prompts.Greeting)
	}
	if !strings.Contains(prompts.SingleFile, "%PATH%") {
		t.Errorf("single_file override lost placeholder: %q", prompts.SingleFile)
	}
	// untouched fields keep defaults
	if prompts.MultiFile != DefaultPrompts().MultiFile {
		t.Error("multi_file should keep default")
	}
	if prompts.DefaultAnalyze != DefaultPrompts().DefaultAnalyze {
		t.Error("default_analyze should keep default")
	}
}

func TestLoadPromptsMalformedKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte(":: not yaml ::\n\t"), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	prompts, err := LoadPrompts(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if prompts.Greeting != DefaultPrompts().Greeting {
		t.Error("defaults not returned on malformed file")
	}
}

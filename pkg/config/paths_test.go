package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()
	if dir == "" {
		t.Fatal("GetConfigDir returned empty path")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("config dir %q is not absolute", dir)
	}
	if filepath.Base(dir) != "clgen" {
		t.Errorf("config dir %q does not end in clgen", dir)
	}
}

func TestGetCacheDir(t *testing.T) {
	dir := GetCacheDir()
	if dir == "" {
		t.Fatal("GetCacheDir returned empty path")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("cache dir %q is not absolute", dir)
	}
	if filepath.Base(dir) != "clgen" {
		t.Errorf("cache dir %q does not end in clgen", dir)
	}
}

func TestDefaultInstancePath(t *testing.T) {
	path := DefaultInstancePath()
	if filepath.Base(path) != "instance.yaml" {
		t.Errorf("default instance path %q does not end in instance.yaml", path)
	}
	if !strings.HasPrefix(path, GetConfigDir()) {
		t.Errorf("default instance path %q is not under the config dir", path)
	}
}

func TestGetModelCacheDir(t *testing.T) {
	got := GetModelCacheDir("/work", "abc123")
	want := filepath.Join("/work", "model", "abc123")
	if got != want {
		t.Errorf("model cache dir: got %q, want %q", got, want)
	}
}

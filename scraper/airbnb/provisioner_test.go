package airbnb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/utils"
)

func writeBrowserArchive(t *testing.T, path string) {
	t.Helper()

	// The browser binary itself ships individually gzip-compressed inside
	// the tarball, like the real bundle.
	var bin bytes.Buffer
	bgz := gzip.NewWriter(&bin)
	if _, err := bgz.Write([]byte("#!/bin/sh\necho fake chrome\n")); err != nil {
		t.Fatal(err)
	}
	if err := bgz.Close(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	addArchiveFile(t, tw, "chrome.gz", bin.Bytes())
	addArchiveFile(t, tw, "lib/libfake.so", []byte("not a real library"))
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func addArchiveFile(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(data)),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatal(err)
	}
}

func constrainedConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	scratch := t.TempDir()
	archive := filepath.Join(t.TempDir(), "chrome-bundle.tar.gz")
	writeBrowserArchive(t, archive)
	return &config.Config{
		ChromeArchivePath: archive,
		ScratchDir:        scratch,
		Headless:          true,
	}, archive
}

func TestProvisionerExtractsBundledBrowser(t *testing.T) {
	cfg, _ := constrainedConfig(t)
	p := NewProvisioner(cfg, utils.NewLogger())

	path, err := p.ExecutablePath()
	if err != nil {
		t.Fatalf("ExecutablePath: %v", err)
	}

	want := filepath.Join(cfg.ScratchDir, "headless-chrome", "chrome")
	if path != want {
		t.Errorf("path: got %q, want %q", path, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("extracted binary missing: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Error("extracted binary is not executable")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "fake chrome") {
		t.Error("binary was not gunzipped to its original content")
	}

	if _, err := os.Stat(filepath.Join(cfg.ScratchDir, "headless-chrome", "chrome.gz")); !os.IsNotExist(err) {
		t.Error("compressed member should be removed after decompression")
	}
	if _, err := os.Stat(filepath.Join(cfg.ScratchDir, "headless-chrome", "lib", "libfake.so")); err != nil {
		t.Errorf("shared library missing after extraction: %v", err)
	}
}

func TestProvisionerCachesResolvedPath(t *testing.T) {
	cfg, archive := constrainedConfig(t)
	p := NewProvisioner(cfg, utils.NewLogger())

	first, err := p.ExecutablePath()
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// With the path cached, the archive is no longer needed.
	if err := os.Remove(archive); err != nil {
		t.Fatal(err)
	}

	second, err := p.ExecutablePath()
	if err != nil {
		t.Fatalf("second resolve should hit the cache: %v", err)
	}
	if first != second {
		t.Errorf("cached path changed: %q then %q", first, second)
	}

	// Reset drops the cache; with the archive and the extracted tree both
	// gone, resolution has to fail.
	p.Reset()
	if err := os.RemoveAll(filepath.Join(cfg.ScratchDir, "headless-chrome")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ExecutablePath(); err == nil {
		t.Error("expected resolution to fail after Reset with nothing on disk")
	}
}

func TestProvisionerReusesWarmExtraction(t *testing.T) {
	cfg, archive := constrainedConfig(t)
	p := NewProvisioner(cfg, utils.NewLogger())

	if _, err := p.ExecutablePath(); err != nil {
		t.Fatalf("initial extraction: %v", err)
	}

	// New provisioner, same scratch dir, archive gone: the warm tree on
	// disk is reused instead of re-extracted.
	if err := os.Remove(archive); err != nil {
		t.Fatal(err)
	}
	fresh := NewProvisioner(cfg, utils.NewLogger())
	if _, err := fresh.ExecutablePath(); err != nil {
		t.Fatalf("warm-tree reuse failed: %v", err)
	}
}

func TestProvisionerNamesFailingStep(t *testing.T) {
	cfg := &config.Config{
		ChromeArchivePath: filepath.Join(t.TempDir(), "does-not-exist.tar.gz"),
		ScratchDir:        t.TempDir(),
	}
	p := NewProvisioner(cfg, utils.NewLogger())

	_, err := p.ExecutablePath()
	if err == nil {
		t.Fatal("expected an error for a missing archive")
	}
	if !strings.Contains(err.Error(), "locate archive") {
		t.Errorf("error should name the failing step, got: %v", err)
	}
}

func TestProvisionerRejectsCorruptArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "corrupt.tar.gz")
	if err := os.WriteFile(archive, []byte("this is not gzip data"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{ChromeArchivePath: archive, ScratchDir: t.TempDir()}
	p := NewProvisioner(cfg, utils.NewLogger())

	_, err := p.ExecutablePath()
	if err == nil {
		t.Fatal("expected an error for a corrupt archive")
	}
	if !strings.Contains(err.Error(), "decompress archive") {
		t.Errorf("error should name the failing step, got: %v", err)
	}
}

package airbnb

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/utils"
)

const desktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Provisioner produces a ready-to-launch browser executable for the host it
// runs on. On a normal machine it probes for an installed Chrome/Chromium;
// on a constrained host (serverless, read-only filesystem) it extracts a
// bundled archive into the scratch directory. The resolved path is cached
// for the process lifetime so repeated imports skip re-extraction.
type Provisioner struct {
	cfg    *config.Config
	logger *utils.Logger

	mu       sync.Mutex
	execPath string
}

// NewProvisioner creates a Provisioner. Construct one per process and share
// it across imports; the executable-path cache lives here, not in globals.
func NewProvisioner(cfg *config.Config, logger *utils.Logger) *Provisioner {
	return &Provisioner{cfg: cfg, logger: logger}
}

// ExecutablePath resolves (and caches) the browser executable path.
func (p *Provisioner) ExecutablePath() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.execPath != "" {
		return p.execPath, nil
	}

	var path string
	var err error
	if p.cfg.ConstrainedHost() {
		path, err = p.extractBundledBrowser()
	} else {
		path, err = p.findInstalledBrowser()
	}
	if err != nil {
		return "", err
	}

	p.logger.Info("[provision] Using browser binary: %s", path)
	p.execPath = path
	return path, nil
}

// Reset clears the cached executable path. Intended for tests.
func (p *Provisioner) Reset() {
	p.mu.Lock()
	p.execPath = ""
	p.mu.Unlock()
}

// AllocatorOptions returns the chromedp exec-allocator options for this
// host, including the resolved executable path.
func (p *Provisioner) AllocatorOptions() ([]chromedp.ExecAllocatorOption, error) {
	execPath, err := p.ExecutablePath()
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1905, 1000),
		chromedp.UserAgent(desktopUserAgent),
		chromedp.ExecPath(execPath),
	)
	if p.cfg.ConstrainedHost() {
		// Memory-constrained hosts cannot afford Chrome's process-per-site model.
		opts = append(opts, chromedp.Flag("single-process", true))
	}
	return opts, nil
}

// findInstalledBrowser locates a locally installed Chrome/Chromium binary.
func (p *Provisioner) findInstalledBrowser() (string, error) {
	if bin := p.cfg.ChromeBin; bin != "" {
		if _, err := os.Stat(bin); err != nil {
			return "", fmt.Errorf("provision browser: locate CHROME_BIN %q: %w", bin, err)
		}
		return bin, nil
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("provision browser: locate executable: no Chrome/Chromium found on PATH or well-known locations (set CHROME_BIN)")
}

// extractBundledBrowser unpacks the bundled browser archive into the
// scratch directory and returns the executable path. A previous run's
// extraction is reused when its binary is still executable.
func (p *Provisioner) extractBundledBrowser() (string, error) {
	archivePath := p.cfg.ChromeArchivePath
	if archivePath == "" {
		return "", fmt.Errorf("provision browser: locate archive: CHROME_ARCHIVE_PATH is empty on a constrained host")
	}

	dest := filepath.Join(p.cfg.ScratchDir, "headless-chrome")
	binPath := filepath.Join(dest, "chrome")

	if isExecutable(binPath) {
		p.logger.Debug("[provision] Reusing extracted browser at %s", binPath)
		p.exportLibraryPath(dest)
		return binPath, nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("provision browser: locate archive %q: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("provision browser: decompress archive %q: %w", archivePath, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("provision browser: extract: create %q: %w", dest, err)
	}

	if err := untar(gz, dest); err != nil {
		return "", fmt.Errorf("provision browser: extract archive %q: %w", archivePath, err)
	}

	if err := decompressMembers(dest); err != nil {
		return "", fmt.Errorf("provision browser: decompress components: %w", err)
	}

	if err := markExecutables(dest); err != nil {
		return "", fmt.Errorf("provision browser: chmod: %w", err)
	}

	if !isExecutable(binPath) {
		return "", fmt.Errorf("provision browser: verify: %q missing or not executable after extraction", binPath)
	}

	p.exportLibraryPath(dest)
	p.logger.Info("[provision] Extracted bundled browser to %s", dest)
	return binPath, nil
}

// exportLibraryPath prepends the bundled shared-library directory to
// LD_LIBRARY_PATH so the extracted binary can resolve its .so files.
func (p *Provisioner) exportLibraryPath(dest string) {
	libDir := filepath.Join(dest, "lib")
	if _, err := os.Stat(libDir); err != nil {
		return
	}
	current := os.Getenv("LD_LIBRARY_PATH")
	if strings.Contains(current, libDir) {
		return
	}
	value := libDir
	if current != "" {
		value = libDir + ":" + current
	}
	if err := os.Setenv("LD_LIBRARY_PATH", value); err != nil {
		p.logger.Warn("[provision] Could not set LD_LIBRARY_PATH: %v", err)
	}
}

func untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// decompressMembers gunzips individually-compressed files left inside the
// extracted tree (the bundle ships large binaries compressed one by one).
func decompressMembers(dest string) error {
	return filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".gz") {
			return err
		}

		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", path, err)
		}
		defer in.Close()

		gz, err := gzip.NewReader(in)
		if err != nil {
			return fmt.Errorf("gunzip %q: %w", path, err)
		}
		defer gz.Close()

		target := strings.TrimSuffix(path, ".gz")
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %q: %w", target, err)
		}
		if _, err := io.Copy(out, gz); err != nil {
			out.Close()
			return fmt.Errorf("write %q: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Remove(path)
	})
}

// markExecutables sets the exec bit on the browser binary and any helper
// binaries or shared objects in the extracted tree.
func markExecutables(dest string) error {
	return filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		name := info.Name()
		if name == "chrome" || strings.HasPrefix(name, "chrome_") ||
			strings.Contains(name, ".so") || name == "nacl_helper" {
			return os.Chmod(path, 0o755)
		}
		return nil
	})
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

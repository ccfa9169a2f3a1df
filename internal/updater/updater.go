// Package updater self-updates the autopilot binary from GitHub releases.
package updater

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	defaultRepo     = "agentdeck/autopilot"
	defaultBinary   = "autopilot"
	checkTimeout    = 10 * time.Second
	downloadTimeout = 5 * time.Minute
)

// Updater checks for and installs new releases
type Updater struct {
	repo       string
	binaryName string
	apiBase    string // overridable for tests
	dlBase     string
}

// New creates an updater for the default release repository
func New() *Updater {
	return &Updater{
		repo:       defaultRepo,
		binaryName: defaultBinary,
		apiBase:    "https://api.github.com",
		dlBase:     "https://github.com",
	}
}

type release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// CheckLatest fetches the latest release tag
func (u *Updater) CheckLatest() (string, error) {
	client := &http.Client{Timeout: checkTimeout}

	resp, err := client.Get(fmt.Sprintf("%s/repos/%s/releases/latest", u.apiBase, u.repo))
	if err != nil {
		return "", fmt.Errorf("checking for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release API returned status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("parsing release info: %w", err)
	}
	return rel.TagName, nil
}

// NeedsUpdate reports whether latest is newer than current. Versions are
// "vX.Y.Z" or "X.Y.Z"; a "dev" build always wants a real release.
func NeedsUpdate(current, latest string) bool {
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")

	if current == "dev" {
		return latest != "dev"
	}

	cur := parseVersion(current)
	lat := parseVersion(latest)
	for i := 0; i < 3; i++ {
		if lat[i] > cur[i] {
			return true
		}
		if lat[i] < cur[i] {
			return false
		}
	}
	return false
}

func parseVersion(v string) [3]int {
	var parts [3]int
	fmt.Sscanf(v, "%d.%d.%d", &parts[0], &parts[1], &parts[2])
	return parts
}

// SelfUpdate downloads the release archive for this platform and swaps the
// running binary in place, with a rollback on copy failure.
func (u *Updater) SelfUpdate(targetVersion string) error {
	platform := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)
	versionNum := strings.TrimPrefix(targetVersion, "v")
	archiveName := fmt.Sprintf("%s_%s_%s.tar.gz", u.binaryName, versionNum, platform)
	url := fmt.Sprintf("%s/%s/releases/download/%s/%s", u.dlBase, u.repo, targetVersion, archiveName)

	tmpDir, err := os.MkdirTemp("", "autopilot-update-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, archiveName)
	if err := downloadFile(url, archivePath); err != nil {
		return fmt.Errorf("downloading update: %w", err)
	}

	if err := extractTarGz(archivePath, tmpDir, u.binaryName); err != nil {
		return fmt.Errorf("extracting update: %w", err)
	}
	newBinaryPath := filepath.Join(tmpDir, u.binaryName)

	currentExe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	currentExe, err = filepath.EvalSymlinks(currentExe)
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	if err := replaceBinary(currentExe, newBinaryPath); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}
	return nil
}

func downloadFile(url, dest string) error {
	client := &http.Client{Timeout: downloadTimeout}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// extractTarGz pulls the named file out of a tar.gz archive. The binary may
// sit at the archive root or inside a versioned subdirectory.
func extractTarGz(archivePath, destDir, targetFile string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if filepath.Base(header.Name) == targetFile && header.Typeflag == tar.TypeReg {
			destPath := filepath.Join(destDir, targetFile)
			outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
			if err != nil {
				return err
			}
			defer outFile.Close()

			_, err = io.Copy(outFile, tr)
			return err
		}
	}
	return fmt.Errorf("binary %s not found in archive", targetFile)
}

func replaceBinary(currentPath, newPath string) error {
	info, err := os.Stat(currentPath)
	if err != nil {
		return err
	}

	backupPath := currentPath + ".old"
	os.Remove(backupPath)

	if err := os.Rename(currentPath, backupPath); err != nil {
		return fmt.Errorf("backing up current binary: %w", err)
	}

	// Copy rather than rename; the temp dir may be on another filesystem.
	if err := copyFile(newPath, currentPath, info.Mode()); err != nil {
		os.Rename(backupPath, currentPath)
		return fmt.Errorf("installing new binary: %w", err)
	}

	os.Remove(backupPath)
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

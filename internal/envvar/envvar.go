// Package envvar persists environment variables across shells: shell rc
// files on unix, the user environment registry on Windows. Changes take
// effect in new terminals only.
package envvar

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Set persists name=value for future shells and returns a short hint for
// the user about when the change takes effect.
func Set(name, value string) (string, error) {
	if runtime.GOOS == "windows" {
		if err := exec.Command("setx", name, value).Run(); err != nil {
			return "", fmt.Errorf("setx %s: %w", name, err)
		}
		return "environment variable set for new terminals", nil
	}

	rc, err := shellRCFile()
	if err != nil {
		return "", err
	}
	if err := upsertExport(rc, name, value); err != nil {
		return "", err
	}
	return fmt.Sprintf("restart your terminal or run 'source %s'", rc), nil
}

// Remove deletes the persisted variable. A variable that was never set is
// not an error.
func Remove(name string) error {
	if runtime.GOOS == "windows" {
		// reg delete fails when the value is absent; that is fine.
		_ = exec.Command("reg", "delete", `HKCU\Environment`, "/F", "/V", name).Run()
		return nil
	}

	rc, err := shellRCFile()
	if err != nil {
		return err
	}
	return removeExport(rc, name)
}

// shellRCFile picks the login-shell configuration file the way the user's
// shell reads it: zsh on macOS sources .zprofile, bash sources
// .bash_profile; on Linux the interactive rc files are the convention.
func shellRCFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	zsh := strings.Contains(os.Getenv("SHELL"), "zsh")

	switch runtime.GOOS {
	case "darwin":
		if zsh {
			return filepath.Join(home, ".zprofile"), nil
		}
		return filepath.Join(home, ".bash_profile"), nil
	default:
		if zsh {
			return filepath.Join(home, ".zshrc"), nil
		}
		return filepath.Join(home, ".bashrc"), nil
	}
}

// upsertExport replaces any existing export line for name and appends the
// new one.
func upsertExport(rc, name, value string) error {
	lines, err := readLines(rc)
	if err != nil {
		return err
	}

	prefix := "export " + name + "="
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, fmt.Sprintf("export %s=%q", name, value))

	return writeLines(rc, kept)
}

func removeExport(rc, name string) error {
	lines, err := readLines(rc)
	if err != nil {
		return err
	}

	prefix := "export " + name + "="
	kept := lines[:0]
	removed := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return nil
	}
	return writeLines(rc, kept)
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}

func writeLines(path string, lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

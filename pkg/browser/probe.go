package browser

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// driverDirName is the directory name playwright-go installs its driver under.
const driverDirName = "ms-playwright-go"

// prober locates drivers and browsers on the local filesystem. Every OS
// access goes through a field so tests can fake the environment.
type prober struct {
	goos       string
	getwd      func() (string, error)
	executable func() (string, error)
	homeDir    func() (string, error)
	getenv     func(string) string
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	lookPath   func(string) (string, error)
}

func newProber() *prober {
	return &prober{
		goos:       runtime.GOOS,
		getwd:      os.Getwd,
		executable: os.Executable,
		homeDir:    os.UserHomeDir,
		getenv:     os.Getenv,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		lookPath:   exec.LookPath,
	}
}

// driverCandidates lists, in probe order, the directories that may hold a
// playwright-go driver: working directory, executable directory, user home,
// then the platform cache directory.
func (p *prober) driverCandidates() []string {
	var dirs []string

	if wd, err := p.getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, driverDirName))
	}
	if exe, err := p.executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), driverDirName))
	}

	home, homeErr := p.homeDir()
	if homeErr == nil {
		dirs = append(dirs, filepath.Join(home, driverDirName))
	}

	switch p.goos {
	case "windows":
		if local := p.getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, driverDirName))
		}
	case "darwin":
		if homeErr == nil {
			dirs = append(dirs, filepath.Join(home, "Library", "Caches", driverDirName))
		}
	default:
		if cache := p.getenv("XDG_CACHE_HOME"); cache != "" {
			dirs = append(dirs, filepath.Join(cache, driverDirName))
		}
		if homeErr == nil {
			dirs = append(dirs, filepath.Join(home, ".cache", driverDirName))
		}
	}

	return dirs
}

// isDir reports whether path exists and is a directory.
func (p *prober) isDir(path string) bool {
	info, err := p.stat(path)
	return err == nil && info.IsDir()
}

// isFile reports whether path exists and is not a directory.
func (p *prober) isFile(path string) bool {
	info, err := p.stat(path)
	return err == nil && !info.IsDir()
}

// findDriverDirectory returns the first candidate holding an installed
// driver, or "" if none does. A candidate qualifies if it contains a
// "package" directory itself, or if one of its version subdirectories does;
// the highest version name wins.
func (p *prober) findDriverDirectory() string {
	for _, dir := range p.driverCandidates() {
		if !p.isDir(dir) {
			continue
		}
		if p.isDir(filepath.Join(dir, "package")) {
			return dir
		}

		entries, err := p.readDir(dir)
		if err != nil {
			continue
		}
		var versions []string
		for _, e := range entries {
			if e.IsDir() {
				versions = append(versions, e.Name())
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(versions)))
		for _, v := range versions {
			if p.isDir(filepath.Join(dir, v, "package")) {
				return filepath.Join(dir, v)
			}
		}
	}
	return ""
}

// findChromePath returns the system Chrome binary, or "" if none is found.
func (p *prober) findChromePath() string {
	switch p.goos {
	case "windows":
		candidates := []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
		if local := p.getenv("LOCALAPPDATA"); local != "" {
			candidates = append(candidates, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe"))
		}
		for _, path := range candidates {
			if p.isFile(path) {
				return path
			}
		}
	case "darwin":
		const bundle = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if p.isFile(bundle) {
			return bundle
		}
	default:
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
			if path, err := p.lookPath(name); err == nil {
				return path
			}
		}
	}
	return ""
}

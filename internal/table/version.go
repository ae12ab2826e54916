package table

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"fwlens/internal/config"
)

// Versioner derives output file names from input file names so each
// processing step writes a new versioned file instead of overwriting
// the previous one.
type Versioner struct {
	cfg config.FileNamingConfig
}

// NewVersioner creates a versioner.
func NewVersioner(cfg config.FileNamingConfig) *Versioner {
	return &Versioner{cfg: cfg}
}

// Next returns the versioned output name for an input file. A file
// already carrying a version suffix gets it incremented; otherwise the
// first version suffix is appended. With final set, the final suffix
// replaces the version counter to mark the last stage's output.
func (v *Versioner) Next(path string, final bool) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	versionRe := regexp.MustCompile(regexp.QuoteMeta(v.cfg.VersionSuffix) + `(\d+)$`)
	if m := versionRe.FindStringSubmatch(base); m != nil {
		base = base[:len(base)-len(m[0])]
		if final {
			return filepath.Join(dir, base+v.cfg.FinalSuffix+ext)
		}
		n, _ := strconv.Atoi(m[1])
		return filepath.Join(dir, fmt.Sprintf("%s%s%d%s", base, v.cfg.VersionSuffix, n+1, ext))
	}

	if final {
		return filepath.Join(dir, base+v.cfg.FinalSuffix+ext)
	}
	return filepath.Join(dir, base+v.cfg.VersionSuffix+"1"+ext)
}

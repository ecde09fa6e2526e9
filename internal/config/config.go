// Package config holds the supervisor's own settings and the pieces of the
// engine configuration the operator display needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settings are the supervisor knobs. Flags override values loaded from an
// optional maxtel.toml; file values only apply to flags the user left at
// their defaults.
type Settings struct {
	Port       int    `toml:"port"`
	Nodes      int    `toml:"nodes"`
	BaseDir    string `toml:"base_dir"`
	EnginePath string `toml:"engine_path"`
	ConfigPath string `toml:"config_path"`
	Size       string `toml:"size"` // requested terminal size, "COLSxROWS"
	Headless   bool   `toml:"headless"`
}

// Default returns the compiled-in settings.
func Default() Settings {
	return Settings{
		Port:       2323,
		Nodes:      4,
		BaseDir:    ".",
		EnginePath: "./bin/max",
		ConfigPath: "config/maximus",
	}
}

// Load reads a maxtel.toml. A missing file is not an error; the defaults
// stand.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := os.Stat(path); err != nil {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return s, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

// ParseSize parses the "-s COLSxROWS" request.
func ParseSize(spec string) (cols, rows int, err error) {
	if n, _ := fmt.Sscanf(spec, "%dx%d", &cols, &rows); n != 2 || cols < 1 || rows < 1 {
		return 0, 0, fmt.Errorf("config: bad size %q (want COLSxROWS)", spec)
	}
	return cols, rows, nil
}

// SystemInfo is what the sidebar knows about the board itself, read from
// the engine's own TOML configuration.
type SystemInfo struct {
	SystemName  string
	SysopName   string
	FTNAddress  string
	CallersPath string // caller log, possibly relative to base
	UserPath    string // user file, possibly relative to base
	AliasMode   bool
}

type engineMainCfg struct {
	SystemName   string `toml:"system_name"`
	Sysop        string `toml:"sysop"`
	FileCallers  string `toml:"file_callers"`
	FilePassword string `toml:"file_password"`
}

type engineSessionCfg struct {
	AliasSystem bool `toml:"alias_system"`
}

type engineMatrixCfg struct {
	Addresses []struct {
		Zone  int `toml:"zone"`
		Net   int `toml:"net"`
		Node  int `toml:"node"`
		Point int `toml:"point"`
	} `toml:"addresses"`
}

// ResolveEnginePath expands an engine config reference: relative to base,
// with an implied .toml extension.
func ResolveEnginePath(base, ref string) string {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if !strings.Contains(filepath.Base(path), ".") {
		path += ".toml"
	}
	return path
}

// LoadSystemInfo reads the engine's main, session, and matrix configs.
// Missing or malformed files degrade to empty info; the display shows
// dashes instead.
func LoadSystemInfo(base, configPath string) SystemInfo {
	var info SystemInfo

	var mainCfg engineMainCfg
	if _, err := toml.DecodeFile(ResolveEnginePath(base, configPath), &mainCfg); err == nil {
		info.SystemName = mainCfg.SystemName
		info.SysopName = mainCfg.Sysop
		info.CallersPath = mainCfg.FileCallers
		info.UserPath = mainCfg.FilePassword
	}

	var sess engineSessionCfg
	if _, err := toml.DecodeFile(ResolveEnginePath(base, "config/general/session"), &sess); err == nil {
		info.AliasMode = sess.AliasSystem
	}

	var matrix engineMatrixCfg
	if _, err := toml.DecodeFile(ResolveEnginePath(base, "config/matrix"), &matrix); err == nil {
		if len(matrix.Addresses) > 0 {
			a := matrix.Addresses[0]
			if a.Zone != 0 || a.Net != 0 || a.Node != 0 || a.Point != 0 {
				if a.Point != 0 {
					info.FTNAddress = fmt.Sprintf("%d:%d/%d.%d", a.Zone, a.Net, a.Node, a.Point)
				} else {
					info.FTNAddress = fmt.Sprintf("%d:%d/%d", a.Zone, a.Net, a.Node)
				}
			}
		}
	}

	return info
}

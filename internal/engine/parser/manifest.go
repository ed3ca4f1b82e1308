package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest is the part of Cargo.toml the analysis needs.
type Manifest struct {
	Valid       bool // false when Cargo.toml is missing or unreadable
	Name        string
	Edition     string // empty when not declared
	RustVersion string // empty when not declared
	LibPath     string
	BinPaths    []string
}

type cargoToml struct {
	Package struct {
		Name        string `toml:"name"`
		Edition     any    `toml:"edition"`
		RustVersion any    `toml:"rust-version"`
	} `toml:"package"`
	Lib struct {
		Path string `toml:"path"`
	} `toml:"lib"`
	Bin []struct {
		Path string `toml:"path"`
	} `toml:"bin"`
}

// ReadManifest decodes a Cargo.toml. Workspace-inherited fields
// ({ workspace = true }) are treated as absent.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (Manifest, error) {
	var raw cargoToml
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Manifest{}, fmt.Errorf("decode Cargo.toml: %w", err)
	}
	m := Manifest{
		Valid:       true,
		Name:        raw.Package.Name,
		Edition:     stringField(raw.Package.Edition),
		RustVersion: stringField(raw.Package.RustVersion),
		LibPath:     strings.TrimSpace(raw.Lib.Path),
	}
	for _, bin := range raw.Bin {
		if p := strings.TrimSpace(bin.Path); p != "" {
			m.BinPaths = append(m.BinPaths, p)
		}
	}
	return m, nil
}

func stringField(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

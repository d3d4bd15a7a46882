package gowrap

import (
	"fmt"
	"os"
	"path/filepath"
)

// Wrap scans the package matching pattern and writes its registration
// file. An empty output means zz_exports.go in the package directory. It
// returns the scanned model and the path written.
func Wrap(pattern, dir, output string) (*PackageModel, string, error) {
	model, err := IntrospectPackage(pattern, dir)
	if err != nil {
		return nil, "", fmt.Errorf("introspecting: %w", err)
	}
	code, err := GenerateGoGlue(model)
	if err != nil {
		return model, "", fmt.Errorf("generating Go glue: %w", err)
	}

	if output == "" {
		output = filepath.Join(model.Dir, exportsFileName)
	}
	if err := os.WriteFile(output, []byte(code), 0o644); err != nil {
		return model, "", fmt.Errorf("writing %s: %w", output, err)
	}
	return model, output, nil
}

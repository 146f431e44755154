// Package source picks a table loader for a file.
package source

import (
	"path/filepath"
	"strings"

	"fleetvrp/internal/integrations"
	"fleetvrp/internal/integrations/csvfile"
	"fleetvrp/internal/integrations/xlsxfile"
	"fleetvrp/internal/model"
)

// ForPath selects a loader by file extension.
func ForPath(path string) (integrations.Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return csvfile.Adapter{}, nil
	case ".xlsx", ".xlsm":
		return xlsxfile.Adapter{}, nil
	}
	return nil, &model.InvalidInputError{Field: "path", Reason: "unsupported file type " + filepath.Ext(path)}
}

package domain

import (
	"path"
	"strings"

	"github.com/samber/lo"
)

// ChartDirFromPath returns the chart directory a repository file belongs
// to, or "" when the file is not inside one. Charts live one per directory
// under chartDir; "" or "." means the repository root.
//
//	ChartDirFromPath("charts/api/env/prod-values.yaml", "charts") == "charts/api"
func ChartDirFromPath(file, chartDir string) string {
	root := strings.Trim(path.Clean("/"+chartDir), "/")
	rest := file
	if root != "" {
		var ok bool
		if rest, ok = strings.CutPrefix(file, root+"/"); !ok {
			return ""
		}
	}
	name, _, found := strings.Cut(rest, "/")
	if !found || name == "" || strings.HasPrefix(name, ".") {
		return ""
	}
	return path.Join(root, name)
}

// ExtractChartDirs returns the distinct chart directories touched by files,
// in first-seen order.
func ExtractChartDirs(files []string, chartDir string) []string {
	dirs := lo.Uniq(lo.FilterMap(files, func(f string, _ int) (string, bool) {
		dir := ChartDirFromPath(f, chartDir)
		return dir, dir != ""
	}))
	if len(dirs) == 0 {
		return nil
	}
	return dirs
}

package convert

// Fixed exclusion table for repository content: build artifacts, VCS and
// editor metadata, binary/media extensions. Merged with caller-supplied
// excludes before every repository conversion.

var ignorePaths = []string{
	"node_modules", ".git", "__pycache__", ".pytest_cache",
	"venv", "env", ".env", ".venv", ".idea", ".vscode",
}

var ignoreFiles = []string{
	"package-lock.json", "yarn.lock", ".gitignore", ".DS_Store", "pnpm-lock.yaml",
}

var ignoreExtensions = []string{
	"*.pyc", "*.pyo", "*.pyd", "*.so", "*.dll", "*.dylib",
	"*.log", "*.tmp", "*.temp", "*.swp", "*.svg", "*.png", "*.gif",
}

// DefaultExcludes returns the fixed exclusion patterns.
func DefaultExcludes() []string {
	out := make([]string, 0, len(ignorePaths)+len(ignoreFiles)+len(ignoreExtensions))
	out = append(out, ignorePaths...)
	out = append(out, ignoreFiles...)
	out = append(out, ignoreExtensions...)
	return out
}

// MergeExcludes combines the default table with caller-supplied patterns,
// dropping duplicates while keeping order.
func MergeExcludes(extra []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range append(DefaultExcludes(), extra...) {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

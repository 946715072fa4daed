package chunk

import "strings"

// languageByExt maps file extensions to a canonical language name, covering
// the spec's required breadth of source languages. Extensions not present
// here fall back to "plaintext" chunking.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".md":    "markdown",
	".html":  "html",
	".css":   "css",
}

// blockKeywords names, per language, the line prefixes that open a new
// top-level scope (function, class, type). blockStartersFor hands them to
// the code splitter to find natural chunk boundaries; languages without an
// entry get blockStartersFor's generic fallback list.
var blockKeywords = map[string][]string{
	"go":         {"func ", "type "},
	"python":     {"def ", "class "},
	"javascript": {"function ", "class ", "const ", "let "},
	"typescript": {"function ", "class ", "interface ", "const "},
	"java":       {"public ", "private ", "protected ", "class ", "interface "},
	"kotlin":     {"fun ", "class ", "interface "},
	"ruby":       {"def ", "class ", "module "},
	"rust":       {"fn ", "struct ", "impl ", "trait "},
	"c":          {"void ", "int ", "struct ", "typedef "},
	"cpp":        {"void ", "int ", "class ", "struct ", "namespace "},
	"csharp":     {"public ", "private ", "class ", "interface "},
	"php":        {"function ", "class "},
	"swift":      {"func ", "class ", "struct ", "extension "},
	"scala":      {"def ", "class ", "object ", "trait "},
}

// DetectLanguage maps a filename to a canonical language by extension.
func DetectLanguage(filename string) string {
	dot := strings.LastIndexByte(filename, '.')
	if dot < 0 {
		return "plaintext"
	}
	ext := strings.ToLower(filename[dot:])
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "plaintext"
}

func blockStartersFor(lang string) []string {
	if kw, ok := blockKeywords[lang]; ok {
		return kw
	}
	return []string{"function ", "def ", "class ", "func "}
}

package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFilter は .gitignore と .codeqaignore のパターンマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は新しいIgnoreFilterを作成します
// root 直下の .gitignore と .codeqaignore を読み込みます
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	var patterns []string

	for _, name := range []string{".gitignore", ".codeqaignore"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		lines, err := readIgnoreFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}

	// デフォルトの除外パターンを追加
	patterns = append(patterns, defaultIgnorePatterns()...)

	return &IgnoreFilter{
		patterns: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// ShouldIgnore はルートからの相対パスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(relPath)
}

// readIgnoreFile は ignore ファイルを読み込んでパターンのスライスを返します
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.FieldsFunc(string(content), func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		// 空行とコメント行をスキップ
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	return patterns, nil
}

// defaultIgnorePatterns はデフォルトの除外パターンを返します
func defaultIgnorePatterns() []string {
	return []string{
		// Git関連
		".git",

		// 依存関係・ビルド成果物
		"node_modules",
		"vendor",
		"dist",
		"build",
		"target",
		".next",
		".venv",
		"venv",

		// IDE/エディタ関連
		".vscode",
		".idea",
		".DS_Store",

		// 環境変数・機密情報
		".env",
		".env.*",
		"*.pem",
		"*.key",

		// キャッシュ
		".cache",
		"__pycache__",
		"*.pyc",
		".pytest_cache",
		".mypy_cache",

		// 圧縮・バイナリ
		"*.min.js",
		"*.zip",
		"*.tar",
		"*.gz",
	}
}

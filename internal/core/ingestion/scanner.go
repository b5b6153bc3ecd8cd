package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrRootNotFound はスキャン対象のルートが存在しない、またはディレクトリでない場合のエラー
var ErrRootNotFound = errors.New("codebase root not found")

// maxFileSize を超えるファイルは読み込まない
const maxFileSize = 2 << 20

// sourceExtensions は言語判定のために内容を読むファイルの拡張子
var sourceExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".java": {},
	".js": {}, ".jsx": {}, ".mjs": {}, ".cjs": {},
	".ts": {}, ".tsx": {}, ".kt": {}, ".kts": {},
}

// Scanner はコードベースを走査して解析対象ファイルと特別ファイルを選別する
type Scanner struct {
	logger *slog.Logger
}

// ScannerOption は Scanner のオプション設定
type ScannerOption func(*Scanner)

// WithScannerLogger はロガーを設定する
func WithScannerLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner は新しい Scanner を作成する
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Scan は root 配下を走査する。
// 読めないサブディレクトリやファイルは警告を出して読み飛ばす。
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	filter, err := NewIgnoreFilter(root)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Root: root}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("読み込めないパスをスキップします", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if filter.ShouldIgnore(rel) || filter.ShouldIgnore(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filter.ShouldIgnore(rel) {
			return nil
		}

		switch {
		case IsSpecialFile(rel):
			content, ok := s.readFile(p, d)
			if ok {
				result.SpecialFiles = append(result.SpecialFiles, SpecialFile{Path: rel, Content: content})
			}
		case isSourceCandidate(rel):
			if IsVendored(rel) {
				return nil
			}
			content, ok := s.readFile(p, d)
			if !ok || IsBinary([]byte(content)) {
				return nil
			}
			lang := DetectLanguage(rel, []byte(content))
			if lang == LanguageUnknown {
				return nil
			}
			result.SourceFiles = append(result.SourceFiles, SourceFile{Path: rel, Language: lang, Content: content})
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, walkErr)
	}

	s.logger.Info("スキャン完了",
		"root", root,
		"sourceFiles", len(result.SourceFiles),
		"specialFiles", len(result.SpecialFiles),
	)
	return result, nil
}

func (s *Scanner) readFile(p string, d fs.DirEntry) (string, bool) {
	if info, err := d.Info(); err == nil && info.Size() > maxFileSize {
		s.logger.Debug("サイズ超過のためスキップします", "path", p, "size", info.Size())
		return "", false
	}
	content, err := os.ReadFile(p)
	if err != nil {
		s.logger.Warn("ファイルを読み込めないためスキップします", "path", p, "error", err)
		return "", false
	}
	return string(content), true
}

func isSourceCandidate(rel string) bool {
	_, ok := sourceExtensions[strings.ToLower(filepath.Ext(rel))]
	return ok
}

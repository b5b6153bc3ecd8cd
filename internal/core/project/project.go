// Package project はコードベース入力からプロジェクト識別子（スラッグ）を導出し、
// プロジェクトごとの成果物ディレクトリを管理する。
package project

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	giturls "github.com/whilp/git-urls"
)

const (
	// MethodDataFile はメソッドエンティティの CSV ダンプ名
	MethodDataFile = "method_data.csv"
	// ClassDataFile はクラスエンティティの CSV ダンプ名
	ClassDataFile = "class_data.csv"
)

var (
	// ErrEmptySlug は入力からスラッグを導出できない場合のエラー
	ErrEmptySlug = errors.New("cannot derive project slug from input")
	// ErrInvalidSlug はストレージルート外を指しうるスラッグのエラー
	ErrInvalidSlug = errors.New("invalid project slug")
)

// IsRemote は入力がリモートリポジトリの URL かどうかを判定する
func IsRemote(input string) bool {
	s := strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "ssh://"):
		return true
	case strings.HasPrefix(s, "git@") && strings.Contains(s, ":"):
		return true
	default:
		return false
	}
}

// Slug は入力（ローカルパス、URL、プロジェクト名）の最後のパス要素をスラッグとして返す。
// 異なる場所にある同名フォルダは同じスラッグになる。
// ローカルパスは絶対パスに解決してから評価するため "." や ".." も実在のフォルダ名になる。
func Slug(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrEmptySlug
	}

	var slug string
	if IsRemote(s) {
		u, err := giturls.Parse(s)
		if err != nil {
			return "", fmt.Errorf("failed to parse repository URL: %w", err)
		}
		p := strings.TrimRight(u.Path, "/")
		slug = strings.TrimSuffix(path.Base(p), ".git")
	} else {
		abs, err := filepath.Abs(s)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %q: %w", s, err)
		}
		slug = filepath.Base(abs)
	}

	if err := ValidateSlug(slug); err != nil {
		return "", fmt.Errorf("%w: %q", ErrEmptySlug, input)
	}
	return slug, nil
}

// ValidateSlug はスラッグがストレージルート直下の 1 要素として扱えるかを検証する
func ValidateSlug(slug string) error {
	switch {
	case slug == "", slug == ".", slug == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	case strings.ContainsRune(slug, '/'), strings.ContainsRune(slug, filepath.Separator):
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// MethodTable はプロジェクトのメソッドテーブル名を返す
func MethodTable(slug string) string {
	return slug + "_method"
}

// ClassTable はプロジェクトのクラステーブル名を返す
func ClassTable(slug string) string {
	return slug + "_class"
}

// Layout は中央ストレージルート配下のディレクトリ構成を表す
type Layout struct {
	Root string
}

// NewLayout は新しい Layout を作成する
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// ArtifactsDir はプロジェクトの成果物ディレクトリを返す
func (l *Layout) ArtifactsDir(slug string) string {
	return filepath.Join(l.Root, slug)
}

// Reset はプロジェクトの成果物ディレクトリを削除して作り直す
func (l *Layout) Reset(slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	dir := l.ArtifactsDir(slug)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to remove artifacts dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	return dir, nil
}

// Exists は成果物ディレクトリが存在するかを返す
func (l *Layout) Exists(slug string) bool {
	if ValidateSlug(slug) != nil {
		return false
	}
	info, err := os.Stat(l.ArtifactsDir(slug))
	return err == nil && info.IsDir()
}

// List は取り込み済みプロジェクト（ルート直下のフォルダ名）を名前順で返す
func (l *Layout) List() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

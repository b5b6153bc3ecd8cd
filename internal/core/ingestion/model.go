package ingestion

import (
	"fmt"
	"strings"
)

// NoClass は所属クラスを持たない関数に設定するクラス名
const NoClass = "empty"

// SourceFile は解析対象のソースファイル
type SourceFile struct {
	Path     string // ルートからの相対パス（スラッシュ区切り）
	Language Language
	Content  string
}

// ScanResult はスキャン結果
type ScanResult struct {
	Root         string
	SourceFiles  []SourceFile
	SpecialFiles []SpecialFile
}

// SpecialFile はエンティティ解析せず内容をそのまま埋め込むファイル（Markdown・シェルスクリプト）
type SpecialFile struct {
	Path    string
	Content string
}

// ClassEntity はクラス（型）単位のエンティティ
type ClassEntity struct {
	FilePath               string
	ClassName              string
	ConstructorDeclaration string
	MethodDeclarations     string
	SourceCode             string
	References             string

	Line int // 宣言行（1 始まり）。参照解決で自身の宣言を除外するために使う
}

// MethodEntity はメソッド（関数）単位のエンティティ
type MethodEntity struct {
	FilePath   string
	ClassName  string
	Name       string
	DocComment string
	SourceCode string
	Code       string
	References string

	Line int
}

// Key はメソッドの識別キー (class_name, name) を返す
func (m MethodEntity) Key() string {
	return m.ClassName + "." + m.Name
}

// ParsedFile は 1 ファイルの解析結果
type ParsedFile struct {
	Classes []ClassEntity
	Methods []MethodEntity
}

// ParseResult はプロジェクト全体の解析結果
type ParseResult struct {
	Classes     []ClassEntity
	Methods     []MethodEntity
	ClassNames  []string // 重複なし、出現順
	MethodNames []string // 重複なし、出現順
}

// ReferenceSite は名前が参照されている位置
type ReferenceSite struct {
	FilePath string
	Line     int
	Text     string
}

// String は "path:line: text" 形式を返す
func (s ReferenceSite) String() string {
	return fmt.Sprintf("%s:%d: %s", s.FilePath, s.Line, s.Text)
}

// References はクラス名／メソッド名から参照位置への対応
type References struct {
	Class  map[string][]ReferenceSite
	Method map[string][]ReferenceSite
}

// RenderSites は参照位置を改行区切りの文字列にする
func RenderSites(sites []ReferenceSite) string {
	if len(sites) == 0 {
		return ""
	}
	lines := make([]string, len(sites))
	for i, s := range sites {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}

// Result は取り込みの結果
type Result struct {
	Slug         string
	ArtifactsDir string
	Classes      int
	Methods      int
	SpecialFiles int
	DroppedRows  int
}

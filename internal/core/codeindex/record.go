// Package codeindex はプロジェクト単位のメソッド／クラステーブルのスキーマと、
// ベクトルストア・Embedding のポートを定義する。
package codeindex

// Sentinel は値が存在しない列に入れるプレースホルダ。
// ベクトルストアのスキーマは NULL を許容しないため、欠損値は必ずこの値で埋める。
const Sentinel = "empty"

// MethodRecord はメソッドテーブルの 1 行
type MethodRecord struct {
	Code       string // 検索対象フィールド（SourceCode と同一）
	FilePath   string
	ClassName  string
	Name       string
	DocComment string
	SourceCode string
	References string
}

// ClassRecord はクラステーブルの 1 行
type ClassRecord struct {
	SourceCode             string // 検索対象フィールド（ファイルパス・クラス名を含む合成文字列）
	FilePath               string
	ClassName              string
	ConstructorDeclaration string
	MethodDeclarations     string
	References             string
}

// Fields は列名と値の対応を返す。空の値は Sentinel で埋める
func (r MethodRecord) Fields() map[string]string {
	return fill(map[string]string{
		"code":        r.Code,
		"file_path":   r.FilePath,
		"class_name":  r.ClassName,
		"name":        r.Name,
		"doc_comment": r.DocComment,
		"source_code": r.SourceCode,
		"references":  r.References,
	})
}

// Fields は列名と値の対応を返す。空の値は Sentinel で埋める
func (r ClassRecord) Fields() map[string]string {
	return fill(map[string]string{
		"source_code":             r.SourceCode,
		"file_path":               r.FilePath,
		"class_name":              r.ClassName,
		"constructor_declaration": r.ConstructorDeclaration,
		"method_declarations":     r.MethodDeclarations,
		"references":              r.References,
	})
}

// MethodRecordFromFields は検索結果の列からメソッドレコードを復元する
func MethodRecordFromFields(f map[string]string) MethodRecord {
	return MethodRecord{
		Code:       f["code"],
		FilePath:   f["file_path"],
		ClassName:  f["class_name"],
		Name:       f["name"],
		DocComment: f["doc_comment"],
		SourceCode: f["source_code"],
		References: f["references"],
	}
}

// ClassRecordFromFields は検索結果の列からクラスレコードを復元する
func ClassRecordFromFields(f map[string]string) ClassRecord {
	return ClassRecord{
		SourceCode:             f["source_code"],
		FilePath:               f["file_path"],
		ClassName:              f["class_name"],
		ConstructorDeclaration: f["constructor_declaration"],
		MethodDeclarations:     f["method_declarations"],
		References:             f["references"],
	}
}

// PlaceholderClassRecord はクラスが 1 件もないプロジェクトで使うプレースホルダ行
func PlaceholderClassRecord() ClassRecord {
	return ClassRecord{
		SourceCode:             Sentinel,
		FilePath:               Sentinel,
		ClassName:              Sentinel,
		ConstructorDeclaration: Sentinel,
		MethodDeclarations:     Sentinel,
		References:             Sentinel,
	}
}

func fill(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			m[k] = Sentinel
		}
	}
	return m
}

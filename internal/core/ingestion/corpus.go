package ingestion

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

// Corpus はベクトルストアに投入する直前のレコード群
type Corpus struct {
	Methods []codeindex.MethodRecord
	Classes []codeindex.ClassRecord // 特別ファイルの行を含む
}

// CorpusBuilder はエンティティと参照を合成してテーブル形式のレコードを作る
type CorpusBuilder struct {
	clipper *TokenClipper
}

// NewCorpusBuilder は新しい CorpusBuilder を作成する
func NewCorpusBuilder(clipper *TokenClipper) *CorpusBuilder {
	return &CorpusBuilder{clipper: clipper}
}

// Merge は解決済みの参照を名前の一致するすべてのエンティティに割り当てる。
// 同じ識別キーを持つエンティティも 1 件にまとめず、それぞれに同じ参照を付ける。
func (b *CorpusBuilder) Merge(parsed *ParseResult, refs References) ([]ClassEntity, []MethodEntity) {
	if parsed == nil {
		return nil, nil
	}

	classes := make([]ClassEntity, len(parsed.Classes))
	for i, c := range parsed.Classes {
		c.References = RenderSites(refs.Class[c.ClassName])
		classes[i] = c
	}

	methods := make([]MethodEntity, len(parsed.Methods))
	for i, m := range parsed.Methods {
		m.References = RenderSites(refs.Method[m.Name])
		if m.ClassName == "" {
			m.ClassName = NoClass
		}
		methods[i] = m
	}

	return classes, methods
}

// Build はメソッドレコードとクラスレコードを作る。
// クラスが 1 件もない場合はプレースホルダ行を 1 行入れ、特別ファイルの行はその後ろに続ける。
func (b *CorpusBuilder) Build(classes []ClassEntity, methods []MethodEntity, specials []SpecialFile) *Corpus {
	corpus := &Corpus{
		Methods: make([]codeindex.MethodRecord, 0, len(methods)),
		Classes: make([]codeindex.ClassRecord, 0, len(classes)+len(specials)+1),
	}

	for _, m := range methods {
		source := b.clipper.Clip(m.SourceCode)
		corpus.Methods = append(corpus.Methods, codeindex.MethodRecord{
			Code:       source,
			FilePath:   m.FilePath,
			ClassName:  m.ClassName,
			Name:       m.Name,
			DocComment: m.DocComment,
			SourceCode: source,
			References: m.References,
		})
	}

	if len(classes) == 0 {
		corpus.Classes = append(corpus.Classes, codeindex.PlaceholderClassRecord())
	}
	for _, c := range classes {
		corpus.Classes = append(corpus.Classes, codeindex.ClassRecord{
			SourceCode: "File: " + c.FilePath + "\n\n" +
				"Class: " + c.ClassName + "\n\n" +
				"Source Code:\n" + b.clipper.Clip(c.SourceCode) + "\n\n",
			FilePath:               c.FilePath,
			ClassName:              c.ClassName,
			ConstructorDeclaration: c.ConstructorDeclaration,
			MethodDeclarations:     c.MethodDeclarations,
			References:             c.References,
		})
	}

	for _, sf := range specials {
		corpus.Classes = append(corpus.Classes, codeindex.ClassRecord{
			SourceCode:             "File: " + sf.Path + "\n\nContent:\n" + b.clipper.Clip(sf.Content) + "\n\n",
			FilePath:               sf.Path,
			ClassName:              codeindex.Sentinel,
			ConstructorDeclaration: codeindex.Sentinel,
			MethodDeclarations:     codeindex.Sentinel,
			References:             codeindex.Sentinel,
		})
	}

	return corpus
}

var classCSVHeader = []string{"file_path", "class_name", "constructor_declaration", "method_declarations", "source_code", "references"}

var methodCSVHeader = []string{"file_path", "class_name", "name", "doc_comment", "source_code", "references"}

// WriteCSV はエンティティを dir 配下の class_data.csv と method_data.csv に書き出す。
// 欠損値は Sentinel で埋める。
func WriteCSV(dir string, classes []ClassEntity, methods []MethodEntity) error {
	classRows := make([][]string, 0, len(classes))
	for _, c := range classes {
		classRows = append(classRows, fillRow(c.FilePath, c.ClassName, c.ConstructorDeclaration, c.MethodDeclarations, c.SourceCode, c.References))
	}
	if err := writeCSVFile(filepath.Join(dir, project.ClassDataFile), classCSVHeader, classRows); err != nil {
		return err
	}

	methodRows := make([][]string, 0, len(methods))
	for _, m := range methods {
		methodRows = append(methodRows, fillRow(m.FilePath, m.ClassName, m.Name, m.DocComment, m.SourceCode, m.References))
	}
	return writeCSVFile(filepath.Join(dir, project.MethodDataFile), methodCSVHeader, methodRows)
}

func writeCSVFile(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fillRow(values ...string) []string {
	row := make([]string, len(values))
	for i, v := range values {
		if v == "" {
			v = codeindex.Sentinel
		}
		row[i] = v
	}
	return row
}

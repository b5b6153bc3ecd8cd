// Package goast は go/parser を使って Go ソースからクラス／メソッドエンティティを抽出する。
//
// 名前付き型をクラス、レシーバ付き関数をそのレシーバ型のメソッドとして扱う。
// NewX という名前の関数は同じファイルで宣言された型 X のコンストラクタとみなす。
package goast

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// Parser は Go 言語用の ingestion.Parser 実装
type Parser struct{}

// NewParser は新しい Parser を作成します
func NewParser() *Parser {
	return &Parser{}
}

// インターフェース実装の確認
var _ ingestion.Parser = (*Parser)(nil)

// Parse は 1 ファイルを AST 解析してエンティティを返します
func (p *Parser) Parse(ctx context.Context, file ingestion.SourceFile) (*ingestion.ParsedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// FileSet は解析ごとに作る（ParseAll から並列に呼ばれるため）
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file.Path, file.Content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Go source: %w", err)
	}

	fp := &fileParser{fset: fset, src: file.Content, path: file.Path}

	// 型宣言を先に集めて、メソッドとコンストラクタを紐付けられるようにする
	for _, decl := range f.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.TYPE {
			fp.collectTypes(gen)
		}
	}
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			fp.collectFunc(fn)
		}
	}

	return fp.result(), nil
}

type fileParser struct {
	fset *token.FileSet
	src  string
	path string

	classes    []ingestion.ClassEntity
	classIndex map[string]int
	decls      map[string][]string // クラス名 -> メソッド宣言
	methods    []ingestion.MethodEntity
}

func (fp *fileParser) collectTypes(gen *ast.GenDecl) {
	if fp.classIndex == nil {
		fp.classIndex = make(map[string]int)
		fp.decls = make(map[string][]string)
	}
	for _, spec := range gen.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		// 括弧なしの宣言は type キーワードから、グループ内は spec から切り出す
		start := ts.Pos()
		if !gen.Lparen.IsValid() {
			start = gen.Pos()
		}
		fp.classIndex[ts.Name.Name] = len(fp.classes)
		fp.classes = append(fp.classes, ingestion.ClassEntity{
			FilePath:   fp.path,
			ClassName:  ts.Name.Name,
			SourceCode: fp.text(start, ts.End()),
			Line:       fp.line(ts.Name.Pos()),
		})
	}
}

func (fp *fileParser) collectFunc(fn *ast.FuncDecl) {
	className := ingestion.NoClass
	decl := fp.declaration(fn)

	switch {
	case fn.Recv != nil && len(fn.Recv.List) > 0:
		if name := receiverTypeName(fn.Recv.List[0].Type); name != "" {
			className = name
			fp.addDecl(name, decl)
		}
	case strings.HasPrefix(fn.Name.Name, "New"):
		target := strings.TrimPrefix(fn.Name.Name, "New")
		if i, ok := fp.classIndex[target]; ok {
			className = target
			if fp.classes[i].ConstructorDeclaration == "" {
				fp.classes[i].ConstructorDeclaration = decl
			}
		}
	}

	var doc string
	if fn.Doc != nil {
		doc = strings.TrimSpace(fn.Doc.Text())
	}

	fp.methods = append(fp.methods, ingestion.MethodEntity{
		FilePath:   fp.path,
		ClassName:  className,
		Name:       fn.Name.Name,
		DocComment: doc,
		SourceCode: fp.text(fn.Pos(), fn.End()),
		Line:       fp.line(fn.Name.Pos()),
	})
}

func (fp *fileParser) addDecl(className, decl string) {
	if _, ok := fp.classIndex[className]; !ok {
		// 別ファイルで宣言された型のメソッド
		return
	}
	fp.decls[className] = append(fp.decls[className], decl)
}

func (fp *fileParser) result() *ingestion.ParsedFile {
	for i := range fp.classes {
		fp.classes[i].MethodDeclarations = strings.Join(fp.decls[fp.classes[i].ClassName], "\n")
	}
	return &ingestion.ParsedFile{
		Classes: fp.classes,
		Methods: fp.methods,
	}
}

// declaration は本体の手前までの宣言部分を返します
func (fp *fileParser) declaration(fn *ast.FuncDecl) string {
	end := fn.End()
	if fn.Body != nil {
		end = fn.Body.Lbrace
	}
	return strings.TrimSpace(fp.text(fn.Pos(), end))
}

func (fp *fileParser) text(start, end token.Pos) string {
	s := fp.fset.Position(start).Offset
	e := fp.fset.Position(end).Offset
	if s < 0 || e > len(fp.src) || s > e {
		return ""
	}
	return fp.src[s:e]
}

func (fp *fileParser) line(pos token.Pos) int {
	return fp.fset.Position(pos).Line
}

// receiverTypeName はレシーバの型名を返します（ポインタと型パラメータは取り除く）
func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.ParenExpr:
		return receiverTypeName(t.X)
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

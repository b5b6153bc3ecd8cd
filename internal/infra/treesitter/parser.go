// Package treesitter は tree-sitter で Python・Java・JavaScript・TypeScript・Kotlin の
// ソースからクラス／メソッドエンティティを抽出する。
package treesitter

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// Parser は tree-sitter による ingestion.Parser 実装
type Parser struct{}

// NewParser は新しい Parser を作成する
func NewParser() *Parser {
	return &Parser{}
}

// インターフェース実装の確認
var _ ingestion.Parser = (*Parser)(nil)

// Parse は 1 ファイルを構文解析してエンティティを返す。
// 構文エラーを含むファイルも、解析できた範囲のエンティティを返す
func (p *Parser) Parse(ctx context.Context, file ingestion.SourceFile) (*ingestion.ParsedFile, error) {
	g, ok := grammars[file.Language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", file.Language)
	}

	// sitter.Parser はスレッドセーフではないため呼び出しごとに作る
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language(file.Path))

	src := []byte(file.Content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	w := &walker{grammar: g, src: src, path: file.Path}
	w.walk(tree.RootNode(), -1)
	return w.result(), nil
}

type walker struct {
	grammar *grammar
	src     []byte
	path    string

	classes []ingestion.ClassEntity
	decls   [][]string // classes と同じ添字でメソッド宣言を保持
	methods []ingestion.MethodEntity
}

// walk はノードを走査する。owner は囲んでいるクラスの添字（なければ -1）
func (w *walker) walk(node *sitter.Node, owner int) {
	if node == nil {
		return
	}

	switch {
	case w.grammar.classNodes[node.Type()]:
		if idx, ok := w.addClass(node); ok {
			owner = idx
		}
	case w.grammar.funcNodes[node.Type()]:
		w.addMethod(node, owner)
		// 関数内の入れ子定義はエンティティにしない
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), owner)
	}
}

func (w *walker) addClass(node *sitter.Node) (int, bool) {
	name, nameNode := nodeName(node, w.src)
	if name == "" {
		return 0, false
	}

	class := ingestion.ClassEntity{
		FilePath:   w.path,
		ClassName:  name,
		SourceCode: node.Content(w.src),
		Line:       int(nameNode.StartPoint().Row) + 1,
	}
	if w.grammar.primaryConstructor && childOfType(node, "primary_constructor") != nil {
		class.ConstructorDeclaration = signature(node, w.src)
	}

	w.classes = append(w.classes, class)
	w.decls = append(w.decls, nil)
	return len(w.classes) - 1, true
}

func (w *walker) addMethod(node *sitter.Node, owner int) {
	name, nameNode := nodeName(node, w.src)
	if name == "" {
		if node.Type() != "secondary_constructor" {
			return
		}
		name, nameNode = "constructor", node
	}

	className := ingestion.NoClass
	decl := signature(node, w.src)
	if owner >= 0 {
		className = w.classes[owner].ClassName
		if w.grammar.constructor(node, name) {
			if w.classes[owner].ConstructorDeclaration == "" {
				w.classes[owner].ConstructorDeclaration = decl
			}
		} else {
			w.decls[owner] = append(w.decls[owner], decl)
		}
	}

	w.methods = append(w.methods, ingestion.MethodEntity{
		FilePath:   w.path,
		ClassName:  className,
		Name:       name,
		DocComment: w.grammar.docComment(node, w.src),
		SourceCode: node.Content(w.src),
		Line:       int(nameNode.StartPoint().Row) + 1,
	})
}

func (w *walker) result() *ingestion.ParsedFile {
	for i := range w.classes {
		w.classes[i].MethodDeclarations = strings.Join(w.decls[i], "\n")
	}
	return &ingestion.ParsedFile{
		Classes: w.classes,
		Methods: w.methods,
	}
}

// identifierTypes は name フィールドを持たない文法で名前として扱うノード
var identifierTypes = []string{"type_identifier", "simple_identifier", "identifier"}

func nodeName(node *sitter.Node, src []byte) (string, *sitter.Node) {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(src), n
	}
	if n := childOfType(node, identifierTypes...); n != nil {
		return n.Content(src), n
	}
	return "", nil
}

// bodyTypes は本体として扱うノード種別（name フィールドが無い Kotlin 向け）
var bodyTypes = []string{"function_body", "class_body", "enum_class_body"}

// signature は本体の手前までの宣言部分を返す。本体がなければ先頭行
func signature(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		body = childOfType(node, bodyTypes...)
	}
	if body != nil && body.StartByte() > node.StartByte() {
		return strings.TrimSpace(string(src[node.StartByte():body.StartByte()]))
	}
	first, _, _ := strings.Cut(node.Content(src), "\n")
	return strings.TrimSpace(first)
}

func childOfType(node *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		for _, t := range types {
			if child.Type() == t {
				return child
			}
		}
	}
	return nil
}

var commentTypes = map[string]bool{
	"comment":           true,
	"line_comment":      true,
	"block_comment":     true,
	"multiline_comment": true,
}

// precedingComment は直前の兄弟ノードがコメントならその本文を返す
func precedingComment(node *sitter.Node, src []byte) string {
	prev := node.PrevNamedSibling()
	if prev == nil || !commentTypes[prev.Type()] {
		return ""
	}
	// コメントと宣言の間に空行があれば別物とみなす
	if node.StartPoint().Row-prev.EndPoint().Row > 1 {
		return ""
	}
	return cleanComment(prev.Content(src))
}

func cleanComment(comment string) string {
	comment = strings.TrimSpace(comment)
	comment = strings.TrimPrefix(comment, "/**")
	comment = strings.TrimPrefix(comment, "/*")
	comment = strings.TrimSuffix(comment, "*/")
	comment = strings.TrimPrefix(comment, "//")

	lines := strings.Split(comment, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// pythonDocstring は本体先頭の文字列リテラルを docstring として返す
func pythonDocstring(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	doc := str.Content(src)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(doc, q) && strings.HasSuffix(doc, q) && len(doc) >= 2*len(q) {
			doc = doc[len(q) : len(doc)-len(q)]
			break
		}
	}
	return strings.TrimSpace(doc)
}

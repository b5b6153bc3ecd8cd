package treesitter

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// grammar は言語ごとのノード種別の対応
type grammar struct {
	language func(filePath string) *sitter.Language

	classNodes map[string]bool
	funcNodes  map[string]bool

	// constructor はメソッドノードがコンストラクタかを判定する
	constructor func(node *sitter.Node, name string) bool
	// docComment は関数・クラスのドキュメントを返す
	docComment func(node *sitter.Node, src []byte) string
	// primaryConstructor はクラス宣言そのものにコンストラクタが含まれる言語（Kotlin）で true
	primaryConstructor bool
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func fixed(lang *sitter.Language) func(string) *sitter.Language {
	return func(string) *sitter.Language { return lang }
}

var grammars = map[ingestion.Language]*grammar{
	ingestion.LanguagePython: {
		language:   fixed(python.GetLanguage()),
		classNodes: set("class_definition"),
		funcNodes:  set("function_definition"),
		constructor: func(_ *sitter.Node, name string) bool {
			return name == "__init__"
		},
		docComment: pythonDocstring,
	},
	ingestion.LanguageJava: {
		language:   fixed(java.GetLanguage()),
		classNodes: set("class_declaration", "interface_declaration", "enum_declaration", "record_declaration"),
		funcNodes:  set("method_declaration", "constructor_declaration"),
		constructor: func(node *sitter.Node, _ string) bool {
			return node.Type() == "constructor_declaration"
		},
		docComment: precedingComment,
	},
	ingestion.LanguageJavaScript: {
		language:   fixed(javascript.GetLanguage()),
		classNodes: set("class_declaration"),
		funcNodes:  set("method_definition", "function_declaration", "generator_function_declaration"),
		constructor: func(node *sitter.Node, name string) bool {
			return node.Type() == "method_definition" && name == "constructor"
		},
		docComment: precedingComment,
	},
	ingestion.LanguageTypeScript: {
		language: func(filePath string) *sitter.Language {
			if strings.EqualFold(path.Ext(filePath), ".tsx") {
				return tsx.GetLanguage()
			}
			return typescript.GetLanguage()
		},
		classNodes: set("class_declaration", "abstract_class_declaration"),
		funcNodes:  set("method_definition", "function_declaration", "generator_function_declaration"),
		constructor: func(node *sitter.Node, name string) bool {
			return node.Type() == "method_definition" && name == "constructor"
		},
		docComment: precedingComment,
	},
	ingestion.LanguageKotlin: {
		language:   fixed(kotlin.GetLanguage()),
		classNodes: set("class_declaration", "object_declaration"),
		funcNodes:  set("function_declaration", "secondary_constructor"),
		constructor: func(node *sitter.Node, _ string) bool {
			return node.Type() == "secondary_constructor"
		},
		docComment:         precedingComment,
		primaryConstructor: true,
	},
}

// Languages は対応している言語の一覧を返す
func Languages() []ingestion.Language {
	return []ingestion.Language{
		ingestion.LanguagePython,
		ingestion.LanguageJava,
		ingestion.LanguageJavaScript,
		ingestion.LanguageTypeScript,
		ingestion.LanguageKotlin,
	}
}

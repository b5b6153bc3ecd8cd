package ingestion

import (
	"path"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Language はエンティティ解析に対応するプログラミング言語を表します
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageKotlin     Language = "kotlin"

	LanguageUnknown Language = "unknown"
)

// enry の言語名からの対応表
var enryLanguages = map[string]Language{
	"Go":         LanguageGo,
	"Python":     LanguagePython,
	"Java":       LanguageJava,
	"JavaScript": LanguageJavaScript,
	"JSX":        LanguageJavaScript,
	"TypeScript": LanguageTypeScript,
	"TSX":        LanguageTypeScript,
	"Kotlin":     LanguageKotlin,
}

// specialExtensions は内容をそのまま埋め込むファイルの拡張子
var specialExtensions = map[string]struct{}{
	".md": {},
	".sh": {},
}

// IsSpecialFile はパスが Markdown またはシェルスクリプトかを判定します
func IsSpecialFile(p string) bool {
	_, ok := specialExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// DetectLanguage はファイル名と内容から言語を判定します
func DetectLanguage(filename string, content []byte) Language {
	if lang, ok := enryLanguages[enry.GetLanguage(path.Base(filename), content)]; ok {
		return lang
	}
	return LanguageUnknown
}

// IsVendored はサードパーティ由来のパスかを判定します
func IsVendored(p string) bool {
	return enry.IsVendor(p)
}

// IsBinary は内容がバイナリかを判定します
func IsBinary(content []byte) bool {
	return enry.IsBinary(content)
}

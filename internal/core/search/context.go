package search

import (
	"fmt"
	"strings"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

// ClassSectionSeparator はメソッド部とクラス部の区切り
const ClassSectionSeparator = "\n below is class or constructor related code \n"

// AssembleContext は検索結果を LLM に渡すコンテキスト文字列に整形する
func AssembleContext(methods []codeindex.MethodRecord, classes []codeindex.ClassRecord) string {
	methodBlocks := make([]string, len(methods))
	for i, m := range methods {
		methodBlocks[i] = fmt.Sprintf("File: %s\nCode:\n%s", m.FilePath, m.Code)
	}

	classBlocks := make([]string, len(classes))
	for i, c := range classes {
		classBlocks[i] = fmt.Sprintf("File: %s\nClass Info:\n%s References: \n%s  \n END OF ROW %d",
			c.FilePath, c.SourceCode, c.References, i)
	}

	return strings.Join(methodBlocks, "\n\n") + ClassSectionSeparator + strings.Join(classBlocks, "\n\n")
}

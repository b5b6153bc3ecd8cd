package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var identPattern = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// maxSiteText は参照位置に残す行テキストの最大長
const maxSiteText = 160

// ReferenceResolver はクラス名・メソッド名が参照されている位置を求める。
// メソッド名は名前だけで照合するため、同名メソッドを持つすべてのクラスに同じ参照が付く。
type ReferenceResolver struct{}

// NewReferenceResolver は新しい ReferenceResolver を作成する
func NewReferenceResolver() *ReferenceResolver {
	return &ReferenceResolver{}
}

type declSite struct {
	path string
	line int
	name string
}

// Resolve は全ファイルを 1 回だけ走査して参照位置を集める。
// 各エンティティ自身の宣言行は参照に含めない。
func (r *ReferenceResolver) Resolve(files []SourceFile, parsed *ParseResult) References {
	refs := References{
		Class:  make(map[string][]ReferenceSite),
		Method: make(map[string][]ReferenceSite),
	}
	if parsed == nil {
		return refs
	}

	classNames := make(map[string]struct{}, len(parsed.ClassNames))
	for _, n := range parsed.ClassNames {
		classNames[n] = struct{}{}
	}
	methodNames := make(map[string]struct{}, len(parsed.MethodNames))
	for _, n := range parsed.MethodNames {
		methodNames[n] = struct{}{}
	}

	classDecls := make(map[declSite]struct{})
	for _, c := range parsed.Classes {
		classDecls[declSite{c.FilePath, c.Line, c.ClassName}] = struct{}{}
	}
	methodDecls := make(map[declSite]struct{})
	for _, m := range parsed.Methods {
		methodDecls[declSite{m.FilePath, m.Line, m.Name}] = struct{}{}
	}

	type siteKey struct {
		path string
		line int
	}
	classSeen := make(map[string]map[siteKey]struct{})
	methodSeen := make(map[string]map[siteKey]struct{})

	record := func(target map[string][]ReferenceSite, seen map[string]map[siteKey]struct{}, name string, site ReferenceSite) {
		k := siteKey{site.FilePath, site.Line}
		if seen[name] == nil {
			seen[name] = make(map[siteKey]struct{})
		}
		if _, dup := seen[name][k]; dup {
			return
		}
		seen[name][k] = struct{}{}
		target[name] = append(target[name], site)
	}

	for _, f := range files {
		for i, line := range strings.Split(f.Content, "\n") {
			lineNo := i + 1
			idents := identPattern.FindAllString(line, -1)
			if len(idents) == 0 {
				continue
			}
			var site *ReferenceSite
			for _, ident := range idents {
				_, isClass := classNames[ident]
				_, isMethod := methodNames[ident]
				if !isClass && !isMethod {
					continue
				}
				if site == nil {
					site = &ReferenceSite{FilePath: f.Path, Line: lineNo, Text: siteText(line)}
				}
				decl := declSite{f.Path, lineNo, ident}
				if isClass {
					if _, own := classDecls[decl]; !own {
						record(refs.Class, classSeen, ident, *site)
					}
				}
				if isMethod {
					if _, own := methodDecls[decl]; !own {
						record(refs.Method, methodSeen, ident, *site)
					}
				}
			}
		}
	}

	return refs
}

func siteText(line string) string {
	text := strings.TrimSpace(line)
	if len(text) > maxSiteText {
		text = text[:maxSiteText]
		for len(text) > 0 && !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	return text
}

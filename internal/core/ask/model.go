package ask

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Codebase string // コードベースの名前・パス・URL
	Question string // ユーザーの質問文
	Rerank   bool   // 検索結果を再ランク付けするか
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer  string            // LLMによる回答
	Context string            // 回答に使ったコンテキスト
	Sources []SourceReference // 参照したソース情報
}

// SourceReference は回答の根拠となったソース参照を表す
type SourceReference struct {
	FilePath string
	Name     string // メソッド名またはクラス名
	Kind     string // "method" または "class"
}

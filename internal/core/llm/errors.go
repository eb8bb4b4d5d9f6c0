package llm

// EmbeddingError は埋め込みプロバイダの終端エラーを表す
// リトライ枯渇後のネットワーク障害・レート制限、または次元数不一致で発生する
// このエラーは呼び出し元のインジェスト・検索処理全体を中断させる
type EmbeddingError struct {
	msg   string
	cause error
}

// NewEmbeddingError は新しいEmbeddingErrorを作成する
func NewEmbeddingError(msg string, cause error) *EmbeddingError {
	return &EmbeddingError{msg: msg, cause: cause}
}

func (e *EmbeddingError) Error() string {
	if e.cause != nil {
		return "embedding provider failed: " + e.msg + ": " + e.cause.Error()
	}
	return "embedding provider failed: " + e.msg
}

// Unwrap は原因エラーを返す
func (e *EmbeddingError) Unwrap() error {
	return e.cause
}

// GenerationError はテキスト生成プロバイダの終端エラーを表す
// このエラーが発生したチャットターンは履歴に記録されない
type GenerationError struct {
	msg   string
	cause error
}

// NewGenerationError は新しいGenerationErrorを作成する
func NewGenerationError(msg string, cause error) *GenerationError {
	return &GenerationError{msg: msg, cause: cause}
}

func (e *GenerationError) Error() string {
	if e.cause != nil {
		return "generation provider failed: " + e.msg + ": " + e.cause.Error()
	}
	return "generation provider failed: " + e.msg
}

// Unwrap は原因エラーを返す
func (e *GenerationError) Unwrap() error {
	return e.cause
}

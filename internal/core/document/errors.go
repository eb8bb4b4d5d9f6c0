package document

// ProcessingError は入力ドキュメント起因の終端エラーを表す
// 空のテキスト・未対応形式・破損ファイルなど、ユーザーが修正可能な失敗に使う
// このエラーが発生したアップロードは一切の部分書き込みを残さない
type ProcessingError struct {
	msg   string
	cause error
}

// NewProcessingError は新しいProcessingErrorを作成する
func NewProcessingError(msg string, cause error) *ProcessingError {
	return &ProcessingError{msg: msg, cause: cause}
}

func (e *ProcessingError) Error() string {
	if e.cause != nil {
		return "document processing failed: " + e.msg + ": " + e.cause.Error()
	}
	return "document processing failed: " + e.msg
}

// Unwrap は原因エラーを返す
func (e *ProcessingError) Unwrap() error {
	return e.cause
}

package index

// StoreError はベクトルストアの接続・永続化の失敗を表す
type StoreError struct {
	msg   string
	cause error
}

// NewStoreError は新しいStoreErrorを作成する
func NewStoreError(msg string, cause error) *StoreError {
	return &StoreError{msg: msg, cause: cause}
}

func (e *StoreError) Error() string {
	if e.cause != nil {
		return "vector store failed: " + e.msg + ": " + e.cause.Error()
	}
	return "vector store failed: " + e.msg
}

// Unwrap は原因エラーを返す
func (e *StoreError) Unwrap() error {
	return e.cause
}

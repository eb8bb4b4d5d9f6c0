package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/chat"
	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/ingestion/chunk"
	"github.com/jinford/doc-rag/internal/core/llm"
	"github.com/jinford/doc-rag/internal/infra/extract"
	"github.com/jinford/doc-rag/internal/infra/memory"
	"github.com/jinford/doc-rag/internal/interface/httpapi"
)

const testDimension = 3

// stubEmbedder は全テキストを同一ベクトルに写す決定的な埋め込み
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string, _ llm.EmbedMode) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (stubEmbedder) Dimension() int    { return testDimension }
func (stubEmbedder) MaxBatchSize() int { return 100 }

// stubGenerator は最初のソースを引用する固定の回答を返す
type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	// プロンプトの先頭コンテキストのファイル名をそのまま引用する
	// テストでは常にtxtなので page は "-"
	start := strings.Index(prompt, "ファイル: ")
	if start < 0 {
		return "no context", nil
	}
	rest := prompt[start+len("ファイル: "):]
	fileName := rest[:strings.Index(rest, ",")]
	return fmt.Sprintf("The answer is here. [source:%s | page - | chunk 0]", fileName), nil
}

func newTestServer(t *testing.T, opts ...httpapi.ServerOption) *httptest.Server {
	t.Helper()

	chunker := chunk.New(&chunk.Config{Size: 200, Overlap: 30})

	idx := memory.NewIndex(testDimension)
	catalog := memory.NewCatalog()
	registry := document.ExtractorRegistry{
		document.FormatTXT: extract.NewTXTExtractor(),
	}

	ingester := ingestion.NewService(registry, chunker, stubEmbedder{}, idx, catalog)
	chatter := chat.NewService(stubEmbedder{}, idx, stubGenerator{})

	server := httptest.NewServer(httpapi.NewServer(ingester, chatter, opts...).Handler())
	t.Cleanup(server.Close)
	return server
}

// uploadFile はmultipartでファイルをアップロードする
func uploadFile(t *testing.T, serverURL, fileName, content string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(serverURL+"/api/upload", writer.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var value T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&value))
	return value
}

func TestUpload_ReturnsCreatedWithChunkCount(t *testing.T) {
	server := newTestServer(t)

	resp := uploadFile(t, server.URL, "alpha.txt", strings.Repeat("hello world. ", 50))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeJSON[map[string]any](t, resp)
	assert.NotEmpty(t, body["doc_id"])
	assert.Equal(t, "alpha.txt", body["file_name"])
	assert.Greater(t, body["chunks_created"].(float64), float64(0))
}

func TestUpload_UnsupportedFormatReturnsBadRequest(t *testing.T) {
	server := newTestServer(t)

	resp := uploadFile(t, server.URL, "image.png", "binary")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_OversizedBodyReturnsRequestEntityTooLarge(t *testing.T) {
	server := newTestServer(t, httpapi.WithMaxUploadSize(1024))

	resp := uploadFile(t, server.URL, "big.txt", strings.Repeat("a", 10_000))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestChat_ReturnsAnswerWithCitations(t *testing.T) {
	server := newTestServer(t)

	resp := uploadFile(t, server.URL, "alpha.txt", "The capital of France is Paris. It is known for the Eiffel Tower.")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	chatResp, err := http.Post(server.URL+"/api/chat", "application/json",
		strings.NewReader(`{"query": "What is the capital of France?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, chatResp.StatusCode)

	body := decodeJSON[struct {
		Answer    string `json:"answer"`
		Citations []struct {
			Number   int    `json:"number"`
			FileName string `json:"file_name"`
			Page     *int   `json:"page"`
		} `json:"citations"`
		Sources []struct {
			DocID string `json:"doc_id"`
		} `json:"sources"`
		Refused bool `json:"refused"`
	}](t, chatResp)

	assert.Equal(t, "The answer is here. [1]", body.Answer)
	require.Len(t, body.Citations, 1)
	assert.Equal(t, 1, body.Citations[0].Number)
	assert.Equal(t, "alpha.txt", body.Citations[0].FileName)
	assert.Nil(t, body.Citations[0].Page)
	assert.NotEmpty(t, body.Sources)
	assert.False(t, body.Refused)
}

func TestChat_NoDocumentsReturnsCannedAnswer(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/chat", "application/json",
		strings.NewReader(`{"query": "anything"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[struct {
		Answer  string `json:"answer"`
		Refused bool   `json:"refused"`
	}](t, resp)
	assert.True(t, body.Refused)
	assert.Equal(t, chat.NoDocumentsAnswer, body.Answer)
}

func TestChat_MissingQueryReturnsBadRequest(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDocument_DeletedDocumentIsNotRetrieved(t *testing.T) {
	server := newTestServer(t)

	resp := uploadFile(t, server.URL, "keep.txt", "This document stays in the index forever.")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = uploadFile(t, server.URL, "gone.txt", "This document will be deleted shortly.")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	uploaded := decodeJSON[map[string]any](t, resp)
	deletedID := uploaded["doc_id"].(string)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/documents/"+deletedID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// 削除は冪等: 同じIDをもう一度削除しても204
	delResp, err = http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	chatResp, err := http.Post(server.URL+"/api/chat", "application/json",
		strings.NewReader(`{"query": "anything", "top_k": 5}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, chatResp.StatusCode)

	body := decodeJSON[struct {
		Sources []struct {
			DocID string `json:"doc_id"`
		} `json:"sources"`
	}](t, chatResp)
	require.NotEmpty(t, body.Sources)
	for _, src := range body.Sources {
		assert.NotEqual(t, deletedID, src.DocID)
	}
}

func TestListDocuments_SortedByFileName(t *testing.T) {
	server := newTestServer(t)

	for _, name := range []string{"zeta.txt", "alpha.txt"} {
		resp := uploadFile(t, server.URL, name, "some content for "+name)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(server.URL + "/api/documents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	docs := decodeJSON[[]struct {
		FileName string `json:"file_name"`
	}](t, resp)
	require.Len(t, docs, 2)
	assert.Equal(t, "alpha.txt", docs[0].FileName)
	assert.Equal(t, "zeta.txt", docs[1].FileName)
}

func TestHealth_AggregatesServiceChecks(t *testing.T) {
	server := newTestServer(t,
		httpapi.WithHealthCheck("embedder", func(context.Context) error { return nil }),
		httpapi.WithHealthCheck("extractor", func(context.Context) error { return errors.New("down") }),
	)

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}](t, resp)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Services["embedder"])
	assert.Equal(t, "unavailable", body.Services["extractor"])
}

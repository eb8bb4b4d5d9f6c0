// Package citation は生成テキストから引用トークンを抽出し、番号付き参照に解決する
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/index"
)

// tokenPattern は生成テキストに埋め込まれる引用トークンの文法
// [source:<file_name> | page <page> | chunk <chunk_id>]
// ページ概念のない形式のチャンクは page を "-" として引用される
var tokenPattern = regexp.MustCompile(`\[source:\s*([^|\[\]]+?)\s*\|\s*page\s+(\d+|-)\s*\|\s*chunk\s+(\d+)\s*\]`)

// Citation は重複排除済みの番号付き参照を表す
// Numberは本文中での初出順に1から割り当てられる
type Citation struct {
	Number   int
	FileName string
	Page     mo.Option[int]
	ChunkID  int
	// Source は回答生成に使われた検索結果のうち一致したもの
	// 一致が見つからない場合はnil（劣化引用だが致命的ではない）
	Source *index.RetrievedSource
}

// Result は引用解決の出力
type Result struct {
	// DisplayText は引用トークンを [n] 形式に置換した本文
	DisplayText string
	// Citations は番号昇順（= 初出順）の参照リスト
	Citations []Citation
}

// citationKey は重複排除のキー
type citationKey struct {
	fileName string
	page     mo.Option[int]
	chunkID  int
}

// Resolve は生成テキストを走査して引用トークンを解決する
// 不正なブラケット表現はリテラルのまま残し、この関数は決して失敗しない
func Resolve(raw string, sources []index.RetrievedSource) *Result {
	matches := tokenPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return &Result{DisplayText: raw}
	}

	numbers := make(map[citationKey]int)
	var citations []Citation

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		fileName := strings.TrimSpace(raw[m[2]:m[3]])
		page := parsePage(raw[m[4]:m[5]])
		chunkID, err := strconv.Atoi(raw[m[6]:m[7]])
		if err != nil {
			// パターン上は到達しないが、解析不能なトークンはそのまま残す
			sb.WriteString(raw[last:m[1]])
			last = m[1]
			continue
		}

		key := citationKey{fileName: fileName, page: page, chunkID: chunkID}
		number, seen := numbers[key]
		if !seen {
			number = len(citations) + 1
			numbers[key] = number
			citations = append(citations, Citation{
				Number:   number,
				FileName: fileName,
				Page:     page,
				ChunkID:  chunkID,
				Source:   matchSource(sources, fileName, page, chunkID),
			})
		}

		sb.WriteString(raw[last:m[0]])
		sb.WriteString(fmt.Sprintf("[%d]", number))
		last = m[1]
	}
	sb.WriteString(raw[last:])

	return &Result{
		DisplayText: sb.String(),
		Citations:   citations,
	}
}

// parsePage はトークン内のページ表記を解釈する（"-" はページなし）
func parsePage(s string) mo.Option[int] {
	if s == "-" {
		return mo.None[int]()
	}
	page, err := strconv.Atoi(s)
	if err != nil {
		return mo.None[int]()
	}
	return mo.Some(page)
}

// matchSource は (file_name, page, chunk_id) の完全一致で検索結果を探す
func matchSource(sources []index.RetrievedSource, fileName string, page mo.Option[int], chunkID int) *index.RetrievedSource {
	for i := range sources {
		s := &sources[i]
		if s.FileName == fileName && s.Page == page && s.ChunkID == chunkID {
			return s
		}
	}
	return nil
}

package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultTargetTokens は1チャンクの目標トークン数
	DefaultTargetTokens = 500
	// DefaultOverlapTokens は隣接チャンク間で重複させるトークン数
	DefaultOverlapTokens = 100
	// DefaultMinTokens はチャンクとして独立させる最小トークン数
	DefaultMinTokens = 5
	// DefaultMaxInputTokens は分割前に入力へ適用する上限トークン数
	DefaultMaxInputTokens = 10000

	encodingName = "cl100k_base"
)

// BPEファイルは実行時にダウンロードせず、埋め込み済みのものを使う
func init() {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// ErrInvalidConfig は設定が不正な場合に返されます
var ErrInvalidConfig = errors.New("invalid splitter config")

// Config は Splitter の設定
type Config struct {
	TargetTokens   int
	OverlapTokens  int
	MinTokens      int
	MaxInputTokens int
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		TargetTokens:   DefaultTargetTokens,
		OverlapTokens:  DefaultOverlapTokens,
		MinTokens:      DefaultMinTokens,
		MaxInputTokens: DefaultMaxInputTokens,
	}
}

func (c Config) validate() error {
	switch {
	case c.TargetTokens <= 0:
		return fmt.Errorf("%w: target tokens must be positive", ErrInvalidConfig)
	case c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens:
		return fmt.Errorf("%w: overlap must be in [0, target)", ErrInvalidConfig)
	case c.MinTokens <= 0:
		return fmt.Errorf("%w: min tokens must be positive", ErrInvalidConfig)
	case c.MaxInputTokens < c.TargetTokens:
		return fmt.Errorf("%w: max input tokens must be >= target tokens", ErrInvalidConfig)
	}
	return nil
}

// Chunk は分割結果の1要素
// StartToken/EndToken は入力（上限適用後）のトークン列に対する半開区間
type Chunk struct {
	Index      int
	Text       string
	StartToken int
	EndToken   int
}

// Tokens はチャンクのトークン数を返す
func (c Chunk) Tokens() int {
	return c.EndToken - c.StartToken
}

// Splitter はテキストを重複付きのトークン窓に分割する
// 同じ入力に対しては常に同じ境界を返す
type Splitter struct {
	encoder *tiktoken.Tiktoken
	cfg     Config
}

// NewSplitter は新しい Splitter を作成する
func NewSplitter(cfg Config) (*Splitter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// cl100k_baseエンコーダを使用（OpenAIのtext-embedding-3-smallと互換）
	encoder, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &Splitter{encoder: encoder, cfg: cfg}, nil
}

// Config は設定を返す
func (s *Splitter) Config() Config {
	return s.cfg
}

// CountTokens はテキストのトークン数をカウントします
func (s *Splitter) CountTokens(text string) int {
	return len(s.encoder.Encode(text, nil, nil))
}

// Split はテキストをチャンク列に分割する
// 最小トークン数に満たない入力（空文字列を含む）は入力全体を1チャンクとして返す
func (s *Splitter) Split(text string) []Chunk {
	normalized := normalize(text)
	tokens := s.encoder.Encode(normalized, nil, nil)

	truncated := false
	if len(tokens) > s.cfg.MaxInputTokens {
		tokens = tokens[:s.snap(tokens, s.cfg.MaxInputTokens, 0)]
		truncated = true
	}

	n := len(tokens)
	if n <= s.cfg.TargetTokens {
		whole := normalized
		if truncated {
			whole = strings.TrimSpace(s.encoder.Decode(tokens))
		}
		return []Chunk{{Index: 0, Text: whole, StartToken: 0, EndToken: n}}
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := start + s.cfg.TargetTokens
		if end >= n {
			end = n
		} else {
			end = s.snap(tokens, s.boundary(tokens, start, end), start)
			// 末尾の断片が最小サイズ未満なら現在のチャンクに吸収する
			if n-end < s.cfg.MinTokens {
				end = n
			}
		}

		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.TrimSpace(s.encoder.Decode(tokens[start:end])),
			StartToken: start,
			EndToken:   end,
		})

		if end == n {
			break
		}

		next := end - s.cfg.OverlapTokens
		if next > start {
			next = s.snap(tokens, next, start)
		}
		if next <= start || next > end {
			next = end
		}
		start = next
	}

	return chunks
}

// boundary は [start, end) の後半から段落境界、次に文末を探して分割位置を返す
// どちらも見つからない場合は end をそのまま返す
func (s *Splitter) boundary(tokens []int, start, end int) int {
	floor := start + (end-start)/2
	sentence := -1
	prevIsNewline := false

	for i := end - 1; i >= floor; i-- {
		piece := s.encoder.Decode(tokens[i : i+1])

		if strings.Contains(piece, "\n\n") {
			return i + 1
		}
		isNewline := strings.HasSuffix(piece, "\n")
		if isNewline && prevIsNewline {
			return i + 2
		}
		prevIsNewline = strings.HasPrefix(piece, "\n")

		if sentence < 0 && endsSentence(piece) {
			sentence = i + 1
		}
	}

	if sentence > 0 {
		return sentence
	}
	return end
}

// snap は pos を文字境界へ寄せる
// cl100k はバイト単位のトークンを持つため、マルチバイト文字が複数トークンに分かれることがある
// (lo, pos] を後ろから探し、見つからなければ pos より後ろを探す
func (s *Splitter) snap(tokens []int, pos, lo int) int {
	for p := pos; p > lo; p-- {
		if s.startsRune(tokens, p) {
			return p
		}
	}
	for p := pos + 1; p < len(tokens); p++ {
		if s.startsRune(tokens, p) {
			return p
		}
	}
	return len(tokens)
}

// startsRune はトークン位置 pos が文字の先頭に当たるかを返す
func (s *Splitter) startsRune(tokens []int, pos int) bool {
	if pos <= 0 || pos >= len(tokens) {
		return true
	}
	piece := s.encoder.Decode(tokens[pos : pos+1])
	return piece == "" || utf8.RuneStart(piece[0])
}

func endsSentence(piece string) bool {
	if strings.Contains(piece, "\n") {
		return true
	}
	trimmed := strings.TrimRight(piece, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

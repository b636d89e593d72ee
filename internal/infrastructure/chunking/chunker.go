package chunking

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

const (
	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 50

	MinChunkTokens = 10
	MaxChunkTokens = 1000
	MinChunkChars  = 15
)

// Chunker splits a document into section-aware, token-bounded chunks.
// Sections open at markdown headers, numbered headers or short all-caps
// lines; chunks never cross a section boundary. Within a section, paragraphs
// are packed greedily up to ChunkTokens, carrying up to the last two
// sentences (bounded by OverlapTokens) into the next chunk.
type Chunker struct {
	ChunkTokens   int
	OverlapTokens int
}

func NewChunker(chunkTokens, overlapTokens int) *Chunker {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= chunkTokens {
		overlapTokens = chunkTokens / 4
	}
	return &Chunker{
		ChunkTokens:   chunkTokens,
		OverlapTokens: overlapTokens,
	}
}

func (c *Chunker) Chunk(content, title string) []domain.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	b := &chunkBuilder{chunker: c}
	for _, sec := range parseSections(content) {
		b.carry = ""
		b.carryTokens = 0
		for _, p := range sec.paras {
			b.add(sec.title, p)
		}
		b.flush(sec.title)
	}

	chunks := b.chunks
	if len(chunks) == 0 {
		// Non-empty document that produced nothing becomes one chunk.
		text := strings.TrimSpace(content)
		return []domain.Chunk{{
			ChunkIndex:  0,
			Content:     text,
			TokenCount:  domain.EstimateTokens(text),
			StartOffset: 0,
			EndOffset:   len(content),
		}}
	}

	// The last chunk absorbs trailing whitespace so offsets partition the
	// whole source text.
	chunks[len(chunks)-1].EndOffset = len(content)
	return chunks
}

// Validate rejects chunks outside the persistable bounds.
func (c *Chunker) Validate(chunk domain.Chunk) error {
	if chunk.TokenCount < MinChunkTokens || chunk.TokenCount > MaxChunkTokens {
		return domain.WrapError(domain.ErrInvalidInput, "validate chunk",
			errors.New("token count out of bounds"))
	}
	if utf8.RuneCountInString(chunk.Content) < MinChunkChars {
		return domain.WrapError(domain.ErrInvalidInput, "validate chunk",
			errors.New("content too short"))
	}
	if !hasSubstance(chunk.Content) {
		return domain.WrapError(domain.ErrInvalidInput, "validate chunk",
			errors.New("content is whitespace or punctuation only"))
	}
	return nil
}

type chunkBuilder struct {
	chunker *Chunker
	chunks  []domain.Chunk

	parts       []para
	partsTokens int
	carry       string
	carryTokens int
	cursor      int
}

func (b *chunkBuilder) add(sectionTitle string, p para) {
	tokens := domain.EstimateTokens(p.text)
	if len(b.parts) > 0 && b.carryTokens+b.partsTokens+tokens > b.chunker.ChunkTokens {
		b.flush(sectionTitle)
	}
	b.parts = append(b.parts, p)
	b.partsTokens += tokens
}

func (b *chunkBuilder) flush(sectionTitle string) {
	if len(b.parts) == 0 {
		return
	}

	texts := make([]string, 0, len(b.parts))
	for _, p := range b.parts {
		texts = append(texts, p.text)
	}
	body := strings.Join(texts, "\n\n")
	text := body
	if b.carry != "" {
		text = b.carry + "\n" + body
	}

	end := b.parts[len(b.parts)-1].end
	b.chunks = append(b.chunks, domain.Chunk{
		ChunkIndex:   len(b.chunks),
		Content:      text,
		SectionTitle: sectionTitle,
		TokenCount:   domain.EstimateTokens(text),
		StartOffset:  b.cursor,
		EndOffset:    end,
	})
	b.cursor = end

	b.carry = overlapTail(body, b.chunker.OverlapTokens)
	b.carryTokens = domain.EstimateTokens(b.carry)
	b.parts = nil
	b.partsTokens = 0
}

type para struct {
	text  string
	start int
	end   int
}

type section struct {
	title string
	paras []para
}

func parseSections(content string) []section {
	secs := []section{{}}
	cur := 0

	var lines []string
	pStart := -1
	pEnd := 0
	flushPara := func() {
		if len(lines) == 0 {
			return
		}
		secs[cur].paras = append(secs[cur].paras, para{
			text:  strings.Join(lines, "\n"),
			start: pStart,
			end:   pEnd,
		})
		lines = nil
		pStart = -1
	}

	offset := 0
	for offset <= len(content) {
		lineEnd := strings.IndexByte(content[offset:], '\n')
		last := lineEnd < 0
		var line string
		if last {
			line = content[offset:]
		} else {
			line = content[offset : offset+lineEnd]
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushPara()
		case isHeaderLine(trimmed):
			flushPara()
			secs = append(secs, section{title: headerTitle(trimmed)})
			cur = len(secs) - 1
		default:
			if pStart < 0 {
				pStart = offset
			}
			lines = append(lines, line)
			pEnd = offset + len(line)
		}

		if last {
			break
		}
		offset += lineEnd + 1
	}
	flushPara()

	out := secs[:0]
	for _, s := range secs {
		if len(s.paras) > 0 {
			out = append(out, s)
		}
	}
	return out
}

var numberedHeader = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*\.[ \t]+\S`)

func isHeaderLine(trimmed string) bool {
	if hashes := countLeadingHashes(trimmed); hashes >= 1 && hashes <= 6 {
		rest := trimmed[hashes:]
		return strings.HasPrefix(rest, " ") && strings.TrimSpace(rest) != ""
	}
	if numberedHeader.MatchString(trimmed) {
		return true
	}
	return isShortAllCaps(trimmed)
}

func headerTitle(trimmed string) string {
	if hashes := countLeadingHashes(trimmed); hashes >= 1 && hashes <= 6 {
		return strings.TrimSpace(trimmed[hashes:])
	}
	return trimmed
}

func countLeadingHashes(s string) int {
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	return n
}

func isShortAllCaps(trimmed string) bool {
	runes := utf8.RuneCountInString(trimmed)
	if runes < 3 || runes > 60 {
		return false
	}
	letters := 0
	for _, r := range trimmed {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0
}

// overlapTail returns up to the last two sentences of text, bounded by
// maxTokens, for continuity into the following chunk.
func overlapTail(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	var take []string
	tokens := 0
	for i := len(sentences) - 1; i >= 0 && len(take) < 2; i-- {
		st := domain.EstimateTokens(sentences[i])
		if tokens+st > maxTokens {
			break
		}
		take = append([]string{sentences[i]}, take...)
		tokens += st
	}
	return strings.TrimSpace(strings.Join(take, " "))
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		atEnd := i == len(runes)-1
		if atEnd || unicode.IsSpace(runes[i+1]) {
			s := strings.TrimSpace(b.String())
			if s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func hasSubstance(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		return true
	}
	return false
}

package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"paper-rag/internal/config"
	"paper-rag/internal/models"

	"github.com/rs/zerolog/log"
)

// Chunker groups pages into sections and turns them into chunks.
type Chunker struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxSectionSize int
}

func NewChunker(cfg config.RAGConfig) *Chunker {
	c := &Chunker{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		MaxSectionSize: cfg.MaxSectionSize,
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 2
	}
	if c.MaxSectionSize <= 0 {
		c.MaxSectionSize = 3000
	}
	return c
}

type section struct {
	title  string
	pages  []models.Page
	bodies []string
}

// Chunk splits a document's pages into chunks. Sections larger than MaxSectionSize are
// split into overlapping pieces titled "<section> (Part N)"; smaller sections yield one
// chunk per page. Chunk indexes run across the whole document.
func (c *Chunker) Chunk(pages []models.Page) []models.Chunk {
	sections := c.groupSections(pages)
	splitter := newTextSplitter(c.ChunkSize, c.ChunkOverlap)

	var chunks []models.Chunk
	for _, sec := range sections {
		total := 0
		for _, body := range sec.bodies {
			total += utf8.RuneCountInString(body)
		}

		if total <= c.MaxSectionSize {
			for i, body := range sec.bodies {
				chunks = append(chunks, models.Chunk{
					Content:      body,
					ChunkIndex:   len(chunks),
					SectionTitle: sec.title,
					PageNumber:   sec.pages[i].Number,
				})
			}
			continue
		}

		pageWords := make([]map[string]struct{}, len(sec.bodies))
		for i, body := range sec.bodies {
			pageWords[i] = wordSet(body)
		}
		pieces := splitter.Split(strings.Join(sec.bodies, " "))
		log.Debug().Str("section", sec.title).Int("chars", total).Int("pieces", len(pieces)).Msg("Splitting large section")

		for n, piece := range pieces {
			chunks = append(chunks, models.Chunk{
				Content:      piece,
				ChunkIndex:   len(chunks),
				SectionTitle: fmt.Sprintf("%s (Part %d)", sec.title, n+1),
				PageNumber:   sec.pages[bestPage(piece, pageWords)].Number,
			})
		}
	}
	return chunks
}

// Sections returns the section titles pages are grouped under, in first-seen order.
func (c *Chunker) Sections(pages []models.Page) []string {
	var titles []string
	for _, sec := range c.groupSections(pages) {
		titles = append(titles, sec.title)
	}
	return titles
}

func (c *Chunker) groupSections(pages []models.Page) []*section {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	known := DetectSections(strings.Join(texts, "\n"))
	knownSet := toSet(known)

	var ordered []*section
	byTitle := make(map[string]*section)
	current := models.DefaultSectionTitle

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		current = assignSection(page.Text, known, knownSet, current)

		body := pageBody(page.Text, known)
		if body == "" {
			continue
		}

		sec, ok := byTitle[current]
		if !ok {
			sec = &section{title: current}
			byTitle[current] = sec
			ordered = append(ordered, sec)
		}
		sec.pages = append(sec.pages, page)
		sec.bodies = append(sec.bodies, body)
	}
	return ordered
}

// bestPage returns the index of the page sharing the most words with text; ties keep
// the earlier page.
func bestPage(text string, pageWords []map[string]struct{}) int {
	words := wordSet(text)
	best, bestScore := 0, -1
	for i, pw := range pageWords {
		score := 0
		for w := range words {
			if _, ok := pw[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

package models

const (
	// Heading patterns are evaluated with regexp2 because of the lookahead boundary:
	// a heading stops at the line end, the next lowercase run, the next capitalized
	// word, a number, or punctuation.
	TopLevelHeadingRegex = `\d+\s+[A-Z][a-zA-Z\s]+?` + headingBoundary
	SubHeadingRegex      = `\d+\.\d+\s+[A-Z][a-zA-Z\s]+?` + headingBoundary
	headingBoundary      = `(?=[ \t]*(?:\r?\n|$)|\s+[a-z]|\s+[A-Z][a-z]|\s*\d|\s*[^\w\s])`

	ThinkTag = `(?s)<think>.*?</think>`

	// MinHeadingLen and MaxHeadingLen are exclusive bounds on heading length in runes.
	MinHeadingLen = 5
	MaxHeadingLen = 100

	DefaultSectionTitle = "Abstract"
	ContentLabel        = "Content"

	NoContextAnswer = "I couldn't find any relevant information to answer your question."
)

// SectionKeywords is the ordered fallback list used when a document has no numbered headings.
var SectionKeywords = []string{
	"abstract", "introduction", "related work", "background", "methodology", "method",
	"approach", "model", "architecture", "experiments", "results", "evaluation",
	"analysis", "discussion", "conclusion", "future work", "limitations",
	"acknowledgments", "references", "appendix", "scope", "scaling", "prediction",
	"capabilities", "training", "attention", "transformer", "encoder", "decoder",
}

var (
	QueryPromptTemplate = `Based on the following context, please answer the question. If the context doesn't contain enough information to answer the question, say so.

Context:
%s

Question: %s

Answer:`
)

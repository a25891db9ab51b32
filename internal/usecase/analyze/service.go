package analyze

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

// Command names.
const (
	CmdRefresh  = "refresh"
	CmdClear    = "clear"
	CmdExpand   = "expand"
	CmdHelp     = "help"
	CmdShowOnly = "show_only"
)

const showOnlyPrefix = "show only "

// commandAliases maps whole-message phrases to command names.
var commandAliases = map[string]string{
	"refresh": CmdRefresh,
	"reload":  CmdRefresh,
	"clear":   CmdClear,
	"reset":   CmdClear,
	"expand":  CmdExpand,
	"more":    CmdExpand,
	"help":    CmdHelp,
}

// relationshipCues mark graph-oriented queries when present as whole words
// (or whole phrases) anywhere in the text.
var relationshipCues = []string{
	"related", "relationship", "relation", "connected", "connection",
	"link", "linked", "between", "neighbors", "graph", "depends on",
}

// factualPhrases mark retrieval-only queries when the text starts with one.
var factualPhrases = []string{
	"show", "find", "get", "list", "display", "search", "look for",
	"lookup", "query", "count", "how many", "what is", "who is", "where is",
}

// Command is a parsed local action.
type Command struct {
	Name string
	Arg  string
}

// Analysis is the classified form of a query plus its dispatch plan.
// SubQueries covers the retrieval wave only; when Generative is set the
// orchestrator assembles the generative call after retrieval completes, so
// the prompt can carry the retrieved snippets.
type Analysis struct {
	Intent     intent.Intent
	Fallback   bool
	Command    Command
	Generative bool
	SubQueries []domain.SubQuery
}

// Service classifies queries by lexical rule. Classification is total: every
// query maps to exactly one intent, unmatched shapes fall back to
// conversational.
type Service struct{}

// NewService creates an analyzer.
func NewService() *Service { return &Service{} }

// Analyze classifies the query and builds its backend dispatch plan. An
// explicit hint overrides rule-based classification.
func (s *Service) Analyze(q domain.Query) Analysis {
	norm := normalize(q.Text())

	var a Analysis
	if h := q.Hint(); h != "" {
		a = hinted(h, norm)
	} else {
		a = classify(norm)
	}

	a.SubQueries = plan(a.Intent, q)
	return a
}

func hinted(h intent.Intent, norm string) Analysis {
	if h == intent.Command {
		cmd, ok := parseCommand(norm)
		if !ok {
			// Unparsable command text still honors the hint.
			cmd = Command{Name: CmdHelp}
		}
		return Analysis{Intent: intent.Command, Command: cmd}
	}
	return Analysis{Intent: h, Generative: h == intent.Conversational}
}

// classify applies the rules in fixed precedence: command, relationship,
// factual, then the conversational fallback.
func classify(norm string) Analysis {
	if cmd, ok := parseCommand(norm); ok {
		return Analysis{Intent: intent.Command, Command: cmd}
	}
	if hasRelationshipCue(norm) {
		return Analysis{Intent: intent.RelationshipExploration}
	}
	if hasFactualLead(norm) {
		return Analysis{Intent: intent.FactualLookup}
	}
	return Analysis{Intent: intent.Conversational, Fallback: true, Generative: true}
}

// plan slices the query per backend. Relationship queries favor the graph
// side: the vector backend keeps the full limit while keyword gets half.
func plan(in intent.Intent, q domain.Query) []domain.SubQuery {
	limit := q.Limit()
	switch in {
	case intent.FactualLookup, intent.Conversational:
		return []domain.SubQuery{
			{Kind: domain.KindKeyword, Terms: q.Text(), Limit: limit},
			{Kind: domain.KindVectorGraph, Text: q.Text(), Limit: limit},
		}
	case intent.RelationshipExploration:
		return []domain.SubQuery{
			{Kind: domain.KindVectorGraph, Text: q.Text(), Limit: limit},
			{Kind: domain.KindKeyword, Terms: q.Text(), Limit: (limit + 1) / 2},
		}
	default:
		return nil
	}
}

func normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

// parseCommand matches the whole message against known command phrases.
func parseCommand(norm string) (Command, bool) {
	trimmed := strings.TrimRight(norm, " .!?")
	if name, ok := commandAliases[trimmed]; ok {
		return Command{Name: name}, true
	}
	if strings.HasPrefix(trimmed, showOnlyPrefix) {
		if arg := strings.TrimSpace(strings.TrimPrefix(trimmed, showOnlyPrefix)); arg != "" {
			return Command{Name: CmdShowOnly, Arg: arg}, true
		}
	}
	return Command{}, false
}

// hasRelationshipCue matches cues against whole tokens so that "blinked"
// never triggers "link". Multi-word cues match as token sequences.
func hasRelationshipCue(norm string) bool {
	padded := " " + strings.Join(tokenize(norm), " ") + " "
	for _, cue := range relationshipCues {
		if strings.Contains(padded, " "+cue+" ") {
			return true
		}
	}
	return false
}

func hasFactualLead(norm string) bool {
	for _, p := range factualPhrases {
		if norm == p || strings.HasPrefix(norm, p+" ") {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

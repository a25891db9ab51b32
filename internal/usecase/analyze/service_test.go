package analyze

import (
	"testing"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

func mustQuery(t *testing.T, text string, hint intent.Intent, limit int) domain.Query {
	t.Helper()
	q, err := domain.NewQuery("conv-1", text, hint, limit)
	if err != nil {
		t.Fatalf("NewQuery(%q): %v", text, err)
	}
	return q
}

func TestAnalyze_Classification(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name string
		text string
		want intent.Intent
	}{
		{"refresh command", "refresh", intent.Command},
		{"reload alias", "Reload", intent.Command},
		{"reset alias", "reset.", intent.Command},
		{"expand alias", "more", intent.Command},
		{"help command", "help", intent.Command},
		{"show only prefix", "Show only golang", intent.Command},
		{"connected cue", "how are the services connected?", intent.RelationshipExploration},
		{"linked cue", "what is linked to payments", intent.RelationshipExploration},
		{"depends on phrase", "payments depends on what", intent.RelationshipExploration},
		{"between cue", "path between billing and ledger", intent.RelationshipExploration},
		{"show lead", "show payment services", intent.FactualLookup},
		{"how many lead", "How many endpoints does billing expose?", intent.FactualLookup},
		{"look for lead", "look for stale configs", intent.FactualLookup},
		{"bare lead word", "list", intent.FactualLookup},
		{"fallback", "why is checkout slow lately", intent.Conversational},
		{"no partial word match", "she blinked twice", intent.Conversational},
		{"no lead mid-sentence", "the showcase findings", intent.Conversational},
		{"show only without arg", "show only", intent.FactualLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := svc.Analyze(mustQuery(t, tt.text, "", 0))
			if a.Intent != tt.want {
				t.Errorf("Analyze(%q).Intent = %s, want %s", tt.text, a.Intent, tt.want)
			}
		})
	}
}

func TestAnalyze_Commands(t *testing.T) {
	svc := NewService()

	tests := []struct {
		text     string
		wantName string
		wantArg  string
	}{
		{"refresh", CmdRefresh, ""},
		{"reload", CmdRefresh, ""},
		{"clear", CmdClear, ""},
		{"reset", CmdClear, ""},
		{"expand", CmdExpand, ""},
		{"more!", CmdExpand, ""},
		{"help", CmdHelp, ""},
		{"Show only golang", CmdShowOnly, "golang"},
		{"show only  payment services ", CmdShowOnly, "payment services"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := svc.Analyze(mustQuery(t, tt.text, "", 0))
			if a.Intent != intent.Command {
				t.Fatalf("intent = %s, want command", a.Intent)
			}
			if a.Command.Name != tt.wantName || a.Command.Arg != tt.wantArg {
				t.Errorf("command = %+v, want {%s %s}", a.Command, tt.wantName, tt.wantArg)
			}
			if len(a.SubQueries) != 0 {
				t.Errorf("commands must not plan backend calls, got %d", len(a.SubQueries))
			}
		})
	}
}

func TestAnalyze_HintOverridesRules(t *testing.T) {
	svc := NewService()

	a := svc.Analyze(mustQuery(t, "how are these connected", intent.FactualLookup, 0))
	if a.Intent != intent.FactualLookup {
		t.Errorf("intent = %s, hint must win over cue", a.Intent)
	}
	if a.Fallback {
		t.Error("hinted classification is never a fallback")
	}

	a = svc.Analyze(mustQuery(t, "tell me a story", intent.RelationshipExploration, 0))
	if a.Intent != intent.RelationshipExploration {
		t.Errorf("intent = %s, want hinted relationship", a.Intent)
	}
}

func TestAnalyze_CommandHintWithUnknownText(t *testing.T) {
	svc := NewService()

	a := svc.Analyze(mustQuery(t, "do something odd", intent.Command, 0))
	if a.Intent != intent.Command {
		t.Fatalf("intent = %s, want command", a.Intent)
	}
	if a.Command.Name != CmdHelp {
		t.Errorf("unparsable command text must map to help, got %q", a.Command.Name)
	}

	a = svc.Analyze(mustQuery(t, "clear", intent.Command, 0))
	if a.Command.Name != CmdClear {
		t.Errorf("command = %q, want clear", a.Command.Name)
	}
}

func TestAnalyze_Fallback(t *testing.T) {
	svc := NewService()

	a := svc.Analyze(mustQuery(t, "why is checkout slow lately", "", 0))
	if !a.Fallback {
		t.Error("unmatched text must flag fallback")
	}
	if !a.Generative {
		t.Error("conversational plan must include the generative phase")
	}

	a = svc.Analyze(mustQuery(t, "show payments", "", 0))
	if a.Fallback || a.Generative {
		t.Errorf("factual lookup must be neither fallback nor generative: %+v", a)
	}
}

func TestAnalyze_Plans(t *testing.T) {
	svc := NewService()

	t.Run("factual", func(t *testing.T) {
		a := svc.Analyze(mustQuery(t, "show payment services", "", 10))
		if len(a.SubQueries) != 2 {
			t.Fatalf("expected 2 sub-queries, got %d", len(a.SubQueries))
		}
		kw, vec := a.SubQueries[0], a.SubQueries[1]
		if kw.Kind != domain.KindKeyword || kw.Terms != "show payment services" || kw.Limit != 10 {
			t.Errorf("keyword sub-query = %+v", kw)
		}
		if vec.Kind != domain.KindVectorGraph || vec.Text != "show payment services" || vec.Limit != 10 {
			t.Errorf("vector sub-query = %+v", vec)
		}
	})

	t.Run("relationship halves keyword limit", func(t *testing.T) {
		a := svc.Analyze(mustQuery(t, "what is connected to billing", "", 5))
		if len(a.SubQueries) != 2 {
			t.Fatalf("expected 2 sub-queries, got %d", len(a.SubQueries))
		}
		if a.SubQueries[0].Kind != domain.KindVectorGraph || a.SubQueries[0].Limit != 5 {
			t.Errorf("vector sub-query = %+v", a.SubQueries[0])
		}
		if a.SubQueries[1].Kind != domain.KindKeyword || a.SubQueries[1].Limit != 3 {
			t.Errorf("keyword sub-query = %+v", a.SubQueries[1])
		}
	})

	t.Run("conversational retrieval wave", func(t *testing.T) {
		a := svc.Analyze(mustQuery(t, "why is checkout slow", "", 0))
		if len(a.SubQueries) != 2 {
			t.Fatalf("retrieval wave must hold 2 sub-queries, got %d", len(a.SubQueries))
		}
		for _, sq := range a.SubQueries {
			if sq.Kind == domain.KindGenerative {
				t.Error("generative call must not be planned before retrieval")
			}
			if sq.Limit != domain.DefaultLimit {
				t.Errorf("limit = %d, want default %d", sq.Limit, domain.DefaultLimit)
			}
		}
		if !a.Generative {
			t.Error("generative flag must be set")
		}
	})
}

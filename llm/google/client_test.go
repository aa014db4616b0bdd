package google

import (
	"testing"

	"github.com/EPecherkin/sloth-chat/llm/base"
	"google.golang.org/genai"
)

func TestRequestContents(t *testing.T) {
	t.Parallel()

	request := base.Request{
		Prompt: "and now?",
		History: []base.Message{
			{Role: base.RoleUser, Text: "first question"},
			{Role: base.RoleAssistant, Text: "first answer"},
		},
	}

	contents := requestContents(request)
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}

	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	wantTexts := []string{"first question", "first answer", "and now?"}
	for i, content := range contents {
		if genai.Role(content.Role) != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, content.Role, wantRoles[i])
		}
		if len(content.Parts) != 1 || content.Parts[0].Text != wantTexts[i] {
			t.Errorf("contents[%d] text = %+v, want %q", i, content.Parts, wantTexts[i])
		}
	}
}

func TestRequestContentsWithoutHistory(t *testing.T) {
	t.Parallel()

	contents := requestContents(base.Request{Prompt: "hello"})
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	if contents[0].Parts[0].Text != "hello" {
		t.Errorf("content text = %q", contents[0].Parts[0].Text)
	}
}

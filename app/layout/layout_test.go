package layout

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

func TestResultCard(t *testing.T) {
	msg := Result("fix this sentence", "Fixed sentence.", "formal", "")
	if msg.ResponseType != ResponseEphemeral {
		t.Fatalf("response_type = %q", msg.ResponseType)
	}
	if msg.Blocks == nil || len(msg.Blocks.BlockSet) != 4 {
		t.Fatalf("expected 4 blocks, got %+v", msg.Blocks)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	body := string(raw)
	for _, want := range []string{"fix this sentence", "Fixed sentence.", ActionRewrite, ActionSend, ActionDismiss, ToneActionID, `"style":"primary"`, `"initial_value":"formal"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("card missing %q: %s", want, body)
		}
	}

	actions, ok := msg.Blocks.BlockSet[3].(*slack.ActionBlock)
	if !ok || len(actions.Elements.ElementSet) != 3 {
		t.Fatalf("unexpected action block: %#v", msg.Blocks.BlockSet[3])
	}
}

func TestResultButtonsCarryParaphraseID(t *testing.T) {
	const id = "5b0a7c1e-3f43-4c4e-9d6f-3c1e0d1f2a77"
	msg := Result("a", "b", "", id)

	actions := msg.Blocks.BlockSet[3].(*slack.ActionBlock)
	values := map[string]string{}
	for _, el := range actions.Elements.ElementSet {
		button := el.(*slack.ButtonBlockElement)
		values[button.ActionID] = button.Value
	}
	if values[ActionRewrite] != id || values[ActionSend] != id {
		t.Fatalf("buttons should carry the paraphrase id: %v", values)
	}
	if values[ActionDismiss] != "dismiss" {
		t.Fatalf("dismiss value = %q", values[ActionDismiss])
	}
}

func TestErrorDefaultsToGenericMessage(t *testing.T) {
	if msg := Error(""); msg.Text != GenericError {
		t.Fatalf("text = %q", msg.Text)
	}
	if msg := Error("Please provide some text."); msg.Text != "Please provide some text." {
		t.Fatalf("text = %q", msg.Text)
	}
}

func TestPublishAndDismiss(t *testing.T) {
	p := Publish("hello team")
	if p.ResponseType != ResponseInChannel || !p.DeleteOriginal || p.Text != "hello team" {
		t.Fatalf("publish mismatch: %+v", p)
	}
	d := Dismiss()
	if !d.DeleteOriginal || d.Text != "" {
		t.Fatalf("dismiss mismatch: %+v", d)
	}
}

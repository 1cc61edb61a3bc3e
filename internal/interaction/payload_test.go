package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carebear/internal/workflow"
	"carebear/pkg/models"
)

const messageActionPayload = `{
	"type": "message_action",
	"token": "secret",
	"callback_id": "create_issue",
	"trigger_id": "13345224609.738474920.8088930838d88f008e0",
	"user": {"id": "U1", "name": "grace"},
	"channel": {"id": "C1", "name": "oncall"},
	"message": {
		"type": "message",
		"user": "U9",
		"team": "T1",
		"text": "build is broken",
		"ts": "1700000000.000100"
	}
}`

const blockActionPayload = `{
	"type": "block_actions",
	"token": "secret",
	"user": {"id": "U1"},
	"view": {"id": "V1", "callback_id": "set_rank", "private_metadata": "U1"},
	"actions": [{
		"type": "radio_buttons",
		"action_id": "rank-issue",
		"block_id": "b1",
		"selected_option": {"text": {"type": "plain_text", "text": "critical"}, "value": "critical"},
		"action_ts": "1700000001.000000"
	}]
}`

const viewSubmissionPayload = `{
	"type": "view_submission",
	"token": "secret",
	"user": {"id": "U1"},
	"view": {"id": "V1", "callback_id": "set_rank", "private_metadata": "U1"}
}`

func TestParse_MessageAction(t *testing.T) {
	cb, err := Parse([]byte(messageActionPayload))
	require.NoError(t, err)
	assert.Equal(t, "secret", cb.Token)
	assert.Equal(t, "message_action", cb.Type)

	ev, ok := cb.Event.(workflow.Initiate)
	require.True(t, ok, "got %T", cb.Event)
	assert.Equal(t, "13345224609.738474920.8088930838d88f008e0", ev.TriggerID)
	assert.Equal(t, "U1", ev.UserID)
	assert.Equal(t, models.Message{
		Channel:   models.Channel{ID: "C1", Name: "oncall"},
		Timestamp: "1700000000.000100",
		Text:      "build is broken",
		Author:    models.Profile{ID: "U9", TeamID: "T1"},
	}, ev.Message)
}

func TestParse_ThreadedMessageKeepsThreadTimestamp(t *testing.T) {
	raw := `{"type":"message_action","user":{"id":"U1"},"channel":{"id":"C1"},
		"message":{"user":"U9","text":"reply","ts":"1700000002.000100","thread_ts":"1700000000.000100"}}`
	cb, err := Parse([]byte(raw))
	require.NoError(t, err)
	ev := cb.Event.(workflow.Initiate)
	assert.True(t, ev.Message.IsThreadedReply())
}

func TestParse_BlockAction(t *testing.T) {
	cb, err := Parse([]byte(blockActionPayload))
	require.NoError(t, err)
	assert.Equal(t, workflow.FieldChange{FormID: "V1", Value: models.RankCritical}, cb.Event)
}

func TestParse_BlockActionUnknownRank(t *testing.T) {
	raw := `{"type":"block_actions","token":"secret","view":{"id":"V1"},"actions":[{"type":"radio_buttons","action_id":"rank-issue","block_id":"b1","selected_option":{"value":"urgent"}}]}`
	cb, err := Parse([]byte(raw))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "secret", cb.Token)
	assert.Nil(t, cb.Event)
}

func TestParse_BlockActionOtherAction(t *testing.T) {
	raw := `{"type":"block_actions","view":{"id":"V1"},"actions":[{"type":"button","action_id":"something-else","block_id":"b1","value":"x"}]}`
	cb, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, cb.Event)
}

func TestParse_ViewSubmission(t *testing.T) {
	cb, err := Parse([]byte(viewSubmissionPayload))
	require.NoError(t, err)
	assert.Equal(t, workflow.Submit{FormID: "V1", UserID: "U1"}, cb.Event)
}

func TestParse_ViewSubmissionOtherForm(t *testing.T) {
	raw := `{"type":"view_submission","user":{"id":"U1"},"view":{"id":"V1","callback_id":"feedback"}}`
	cb, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, cb.Event)
}

func TestParse_UnknownType(t *testing.T) {
	cb, err := Parse([]byte(`{"type":"shortcut","token":"secret"}`))
	require.NoError(t, err)
	assert.Equal(t, "shortcut", cb.Type)
	assert.Nil(t, cb.Event)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

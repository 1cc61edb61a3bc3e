package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRank(t *testing.T) {
	r, err := ParseRank("critical")
	assert.NoError(t, err)
	assert.Equal(t, RankCritical, r)

	_, err = ParseRank("urgent")
	assert.Error(t, err)
}

func TestMessageIsThreadedReply(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{name: "top level", msg: Message{Timestamp: "1.0"}, want: false},
		{name: "thread parent", msg: Message{Timestamp: "1.0", ThreadTimestamp: "1.0"}, want: false},
		{name: "reply", msg: Message{Timestamp: "2.0", ThreadTimestamp: "1.0"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.IsThreadedReply())
		})
	}
}

func TestIssuePatch(t *testing.T) {
	status := StatusDone
	bad := Rank("urgent")

	assert.Error(t, IssuePatch{}.Validate())
	assert.Error(t, IssuePatch{ID: "i1", Rank: &bad}.Validate())

	p := IssuePatch{ID: "i1", Status: &status}
	assert.NoError(t, p.Validate())

	issue := Issue{ID: "i1", Rank: RankLow, Status: StatusBacklog}
	p.Apply(&issue)
	assert.Equal(t, StatusDone, issue.Status)
	assert.Equal(t, RankLow, issue.Rank)
}

package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"carebear/pkg/models"
)

// Identifiers shared between the rank form and the interaction callbacks it
// produces.
const (
	RankFormCallbackID = "set_rank"
	RankActionID       = "rank-issue"
)

var rankDescriptions = map[models.Rank]string{
	models.RankLow:      "This issue is not your top priority - only look into it if there are no higher priority tasks in the backlog.",
	models.RankHigh:     "This issue should be handled as soon as possible.",
	models.RankCritical: "This issue requires immediate action.",
}

// SlackGateway is the Slack Web API implementation of PlatformGateway.
type SlackGateway struct {
	client *slack.Client
}

// NewSlackGateway creates a gateway authenticated with the bot token. An
// empty apiURL targets slack.com; timeout bounds every API call.
func NewSlackGateway(botToken, apiURL string, timeout time.Duration) *SlackGateway {
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackGateway{client: slack.New(botToken, opts...)}
}

// OpenForm opens the rank modal.
func (g *SlackGateway) OpenForm(ctx context.Context, triggerID, userID string) (string, error) {
	resp, err := g.client.OpenViewContext(ctx, triggerID, RankForm(userID))
	if err != nil {
		return "", fmt.Errorf("slack views.open: %w", err)
	}
	if resp.View.ID == "" {
		return "", fmt.Errorf("slack views.open: response carried no view id")
	}
	return resp.View.ID, nil
}

// GetUserProfile resolves a user through users.info.
func (g *SlackGateway) GetUserProfile(ctx context.Context, userID string) (models.Profile, error) {
	user, err := g.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("slack users.info %s: %w", userID, err)
	}
	name := user.RealName
	if name == "" {
		name = user.Profile.RealName
	}
	return models.Profile{
		ID:     user.ID,
		Name:   name,
		Handle: user.Name,
		TeamID: user.TeamID,
	}, nil
}

// PostMessage posts text through chat.postMessage.
func (g *SlackGateway) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := g.client.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("slack chat.postMessage %s: %w", channelID, err)
	}
	return nil
}

// RankForm builds the modal asking the reporter to rank an issue.
func RankForm(userID string) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(models.Ranks))
	for _, rank := range models.Ranks {
		options = append(options, slack.NewOptionBlockObject(
			string(rank),
			slack.NewTextBlockObject(slack.PlainTextType, string(rank), false, false),
			slack.NewTextBlockObject(slack.PlainTextType, rankDescriptions[rank], false, false),
		))
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      RankFormCallbackID,
		PrivateMetadata: userID,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Care Bear", true, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Submit", true, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", true, false),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewSectionBlock(
					slack.NewTextBlockObject(slack.PlainTextType, "How would you rank this issue?", false, false),
					nil,
					slack.NewAccessory(slack.NewRadioButtonsBlockElement(RankActionID, options...)),
				),
			},
		},
	}
}

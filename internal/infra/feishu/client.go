package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/rs/zerolog"

	"github.com/devricklin/keyword-forwarder/internal/logging"
)

// maxPageSize is the largest page the message list API accepts
const maxPageSize = 50

// MsgTypeMergeForward is the type of a listed merge-forwarded bundle. Its
// members are only returned by GetBundleMessages.
const MsgTypeMergeForward = "merge_forward"

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID          string
	MsgType        string // text, post, image, file, ...
	Content        string // Extracted text, empty for media
	HasText        bool   // True for text and post messages
	CreateTime     int64  // Milliseconds Unix timestamp
	UpperMessageID string // Bundle id, only set on members returned by GetBundleMessages
	Deleted        bool
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID string
	Name   string
}

// Client is the Feishu API client
type Client struct {
	larkCli *lark.Client
	logger  *zerolog.Logger
}

// NewClient creates a new Feishu client. Extra lark options (for example
// lark.WithOpenBaseUrl) are passed to the SDK.
func NewClient(appID, appSecret string, logger *zerolog.Logger, opts ...lark.ClientOptionFunc) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		larkCli: lark.NewClient(appID, appSecret, opts...),
		logger:  logger,
	}
}

// ListMessages retrieves messages of a chat created in [since, until] in
// chronological order (oldest first). A zero until lists up to now and
// limit <= 0 lists every page.
func (c *Client) ListMessages(ctx context.Context, chatID string, since, until time.Time, limit int) ([]*HistoryMessage, error) {
	var messages []*HistoryMessage
	var pageToken string

	for {
		pageSize := maxPageSize
		if limit > 0 && limit-len(messages) < pageSize {
			pageSize = limit - len(messages)
		}

		reqBuilder := larkim.NewListMessageReqBuilder().
			ContainerIdType("chat").
			ContainerId(chatID).
			SortType("ByCreateTimeAsc").
			PageSize(pageSize)
		if !since.IsZero() {
			reqBuilder = reqBuilder.StartTime(strconv.FormatInt(since.Unix(), 10))
		}
		if !until.IsZero() {
			reqBuilder = reqBuilder.EndTime(strconv.FormatInt(until.Unix(), 10))
		}
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Message.List(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("list messages failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list messages error: code=%d msg=%s", resp.Code, resp.Msg)
		}

		for _, item := range resp.Data.Items {
			msg := toHistoryMessage(item)
			if msg == nil {
				continue
			}
			messages = append(messages, msg)
			if limit > 0 && len(messages) >= limit {
				break
			}
		}

		if limit > 0 && len(messages) >= limit {
			break
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	c.logger.Debug().Str("chat_id", chatID).Int("count", len(messages)).Msg("retrieved messages")
	return messages, nil
}

// GetBundleMessages retrieves the direct members of a merge-forwarded
// bundle, in bundle order
func (c *Client) GetBundleMessages(ctx context.Context, bundleID string) ([]*HistoryMessage, error) {
	req := larkim.NewGetMessageReqBuilder().
		MessageId(bundleID).
		Build()

	resp, err := c.larkCli.Im.Message.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get bundle %s failed: %w", bundleID, err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get bundle %s error: code=%d msg=%s", bundleID, resp.Code, resp.Msg)
	}

	members := bundleMembers(bundleID, resp.Data.Items)
	c.logger.Debug().Str("bundle_id", bundleID).Int("count", len(members)).Msg("retrieved bundle members")
	return members, nil
}

// bundleMembers keeps the items whose upper message is bundleID. The
// response also carries the bundle itself and members of nested bundles.
func bundleMembers(bundleID string, items []*larkim.Message) []*HistoryMessage {
	var members []*HistoryMessage
	for _, item := range items {
		msg := toHistoryMessage(item)
		if msg == nil || msg.MsgID == bundleID || msg.UpperMessageID != bundleID {
			continue
		}
		members = append(members, msg)
	}
	return members
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	return info, nil
}

// ForwardMessage forwards a single message to a chat
func (c *Client) ForwardMessage(ctx context.Context, messageID, targetChatID string) error {
	req := larkim.NewForwardMessageReqBuilder().
		MessageId(messageID).
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewForwardMessageReqBodyBuilder().
			ReceiveId(targetChatID).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Forward(ctx, req)
	if err != nil {
		return fmt.Errorf("forward message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("forward message error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	c.logger.Debug().Str("msg_id", messageID).Str("target", targetChatID).Msg("message forwarded")
	return nil
}

// MergeForwardMessages forwards several messages as one bundle, keeping
// their order
func (c *Client) MergeForwardMessages(ctx context.Context, messageIDs []string, targetChatID string) error {
	req := larkim.NewMergeForwardMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewMergeForwardMessageReqBodyBuilder().
			ReceiveId(targetChatID).
			MessageIdList(messageIDs).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.MergeForward(ctx, req)
	if err != nil {
		return fmt.Errorf("merge forward failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("merge forward error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	c.logger.Debug().Strs("msg_ids", messageIDs).Str("target", targetChatID).Msg("messages merge-forwarded")
	return nil
}

// toHistoryMessage converts a listed item; deleted or id-less items yield nil
func toHistoryMessage(item *larkim.Message) *HistoryMessage {
	if item == nil || item.MessageId == nil {
		return nil
	}
	msg := &HistoryMessage{MsgID: *item.MessageId}
	if item.Deleted != nil && *item.Deleted {
		return nil
	}
	if item.MsgType != nil {
		msg.MsgType = *item.MsgType
	}
	if item.CreateTime != nil {
		if ms, err := strconv.ParseInt(*item.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ms
		}
	}
	if item.UpperMessageId != nil {
		msg.UpperMessageID = *item.UpperMessageId
	}

	// Build mention map so @_user_N placeholders resolve to names
	mentionMap := make(map[string]string)
	for _, mention := range item.Mentions {
		if mention != nil && mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	if item.Body != nil && item.Body.Content != nil {
		rawContent := *item.Body.Content
		switch msg.MsgType {
		case "text":
			msg.Content = parseTextContent(rawContent, mentionMap)
			msg.HasText = true
		case "post":
			msg.Content = parsePostContent(rawContent, mentionMap)
			msg.HasText = true
		}
	}
	return msg
}

// parseTextContent extracts text from a text message
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent extracts text from a rich text message, images are ignored
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"` // for "at" tags
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var textParts []string
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}
	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "a":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if elem.UserID != "" {
					if name, ok := mentionMap[elem.UserID]; ok {
						lineParts = append(lineParts, "@"+name)
					} else {
						lineParts = append(lineParts, "@"+elem.UserID)
					}
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return replaceMentions(strings.Join(textParts, "\n"), mentionMap)
}

// replaceMentions replaces mention placeholders (@_user_1, ...) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	result := text
	for key, name := range mentionMap {
		result = strings.ReplaceAll(result, key, "@"+name)
	}
	return result
}

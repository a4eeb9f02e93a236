package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/infra/feishu"
)

// feishuClient is the subset of the Feishu client used by the repository
type feishuClient interface {
	ListMessages(ctx context.Context, chatID string, since, until time.Time, limit int) ([]*feishu.HistoryMessage, error)
	GetBundleMessages(ctx context.Context, bundleID string) ([]*feishu.HistoryMessage, error)
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
	ForwardMessage(ctx context.Context, messageID, targetChatID string) error
	MergeForwardMessages(ctx context.Context, messageIDs []string, targetChatID string) error
}

// maxBundleMembers bounds the member -> bundle index
const maxBundleMembers = 10000

// feishuRepo implements the message repository on the Feishu open API.
//
// Feishu has no albums. A merge-forwarded bundle is the closest thing: it
// is listed as one message and its members are expanded into a media
// group keyed by the bundle id. Members cannot be forwarded on their own,
// so Forward sends the bundle instead.
type feishuRepo struct {
	client feishuClient

	mu      sync.Mutex
	bundles map[string]string // member id -> bundle id
}

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client *feishu.Client) repo.MessageRepo {
	return newFeishuRepo(client)
}

func newFeishuRepo(client feishuClient) *feishuRepo {
	return &feishuRepo{
		client:  client,
		bundles: make(map[string]string),
	}
}

// ListMessages lists messages of a chat created inside [since, until]
func (r *feishuRepo) ListMessages(ctx context.Context, sourceID string, since, until time.Time, limit int) ([]domain.Message, error) {
	// The API filters on whole seconds, so widen the upper bound and
	// trim precisely below.
	apiUntil := until
	if !apiUntil.IsZero() {
		apiUntil = apiUntil.Add(time.Second)
	}

	msgs, err := r.client.ListMessages(ctx, sourceID, since, apiUntil, limit)
	if err != nil {
		return nil, &domain.RetrievalError{SourceID: sourceID, Err: err}
	}

	result := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := toDomainMessage(sourceID, m)
		if !since.IsZero() && msg.IsBefore(since) {
			continue
		}
		if !until.IsZero() && msg.IsAfter(until) {
			continue
		}
		if m.MsgType != feishu.MsgTypeMergeForward {
			result = append(result, msg)
			continue
		}

		members, err := r.expandBundle(ctx, sourceID, m)
		if err != nil {
			return nil, &domain.RetrievalError{SourceID: sourceID, Err: err}
		}
		if len(members) == 0 {
			result = append(result, msg)
			continue
		}
		result = append(result, members...)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// expandBundle returns the members of a listed bundle as one media group.
// Members keep the bundle's position in the chat.
func (r *feishuRepo) expandBundle(ctx context.Context, sourceID string, bundle *feishu.HistoryMessage) ([]domain.Message, error) {
	members, err := r.client.GetBundleMessages(ctx, bundle.MsgID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bundles)+len(members) > maxBundleMembers {
		r.bundles = make(map[string]string)
	}

	createdAt := time.UnixMilli(bundle.CreateTime)
	out := make([]domain.Message, 0, len(members))
	for _, m := range members {
		var msg domain.Message
		if m.HasText {
			msg = domain.NewTextMessage(sourceID, m.MsgID, m.Content, createdAt)
		} else {
			msg = domain.NewMediaMessage(sourceID, m.MsgID, createdAt)
		}
		msg.MsgType = m.MsgType
		out = append(out, msg.WithGroup(bundle.MsgID))
		r.bundles[m.MsgID] = bundle.MsgID
	}
	return out, nil
}

// forwardTargets maps bundle members to their bundle, keeping order and
// dropping repeats
func (r *feishuRepo) forwardTargets(messageIDs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(messageIDs))
	targets := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if bundleID, ok := r.bundles[id]; ok {
			id = bundleID
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	return targets
}

// ResolveChat resolves a chat id to a handle
func (r *feishuRepo) ResolveChat(ctx context.Context, chatID string) (*domain.ChatHandle, error) {
	if chatID == "" {
		return nil, fmt.Errorf("empty chat id")
	}
	info, err := r.client.GetChatInfo(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &domain.ChatHandle{ChatID: info.ChatID, Name: info.Name}, nil
}

// Forward forwards one message directly and several as a merged bundle.
// Members of a listed bundle are replaced by the bundle itself.
func (r *feishuRepo) Forward(ctx context.Context, dest *domain.ChatHandle, sourceID string, messageIDs []string) error {
	targets := r.forwardTargets(messageIDs)
	switch len(targets) {
	case 0:
		return fmt.Errorf("no messages to forward from %s", sourceID)
	case 1:
		return r.client.ForwardMessage(ctx, targets[0], dest.ChatID)
	default:
		return r.client.MergeForwardMessages(ctx, targets, dest.ChatID)
	}
}

// toDomainMessage converts a listed Feishu history message
func toDomainMessage(sourceID string, m *feishu.HistoryMessage) domain.Message {
	createdAt := time.UnixMilli(m.CreateTime)

	var msg domain.Message
	if m.HasText {
		msg = domain.NewTextMessage(sourceID, m.MsgID, m.Content, createdAt)
	} else {
		msg = domain.NewMediaMessage(sourceID, m.MsgID, createdAt)
	}
	msg.MsgType = m.MsgType
	return msg
}

package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	rdb "github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-oauth2-server/auth/flowrepo"
	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

var _ flowrepo.Repo = (*FlowRepo)(nil)

// FlowRepo keeps pending authorization flows in Redis so any instance can
// resume a flow another instance started. Key TTLs track each flow's expiry.
type FlowRepo struct {
	client    rdb.UniversalClient
	keyPrefix string
	nowFunc   func() time.Time
}

type FlowRepoOption func(*FlowRepo)

// WithFlowNowTime sets the time function used for expiry arithmetic
func WithFlowNowTime(nowFunc func() time.Time) FlowRepoOption {
	return func(r *FlowRepo) {
		r.nowFunc = nowFunc
	}
}

// NewFlowRepo wraps an existing client. The prefix namespaces every key so
// one Redis can serve several deployments.
func NewFlowRepo(client rdb.UniversalClient, keyPrefix string, opts ...FlowRepoOption) *FlowRepo {
	repo := &FlowRepo{
		client:    client,
		keyPrefix: keyPrefix,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// storedFlow is the JSON shape of a pending flow at rest. The authorization
// parameters are flattened alongside the flow fields; times are Unix seconds.
type storedFlow struct {
	ID                  string `json:"id"`
	Subject             string `json:"subject,omitempty"`
	ClientID            string `json:"client_id"`
	ResponseType        string `json:"response_type"`
	RedirectURI         string `json:"redirect_uri,omitempty"`
	ResponseMode        string `json:"response_mode,omitempty"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
}

// Upsert writes the flow under its ID, replacing any previous state. The key
// lives until the flow's ExpiresAt.
func (r *FlowRepo) Upsert(ctx context.Context, flow *flowrepo.Flow) error {
	if flow == nil || flow.ID == "" {
		return errors.New("[FlowRepo.Upsert] flow requires an ID")
	}

	ttl := flow.ExpiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		// Writing an already expired flow would create a key with no TTL.
		return errors.New("[FlowRepo.Upsert] flow is already expired")
	}

	data, err := json.Marshal(storedFlow{
		ID:                  flow.ID,
		Subject:             flow.Subject,
		ClientID:            flow.Params.ClientID,
		ResponseType:        string(flow.Params.ResponseType),
		RedirectURI:         flow.Params.RedirectURI,
		ResponseMode:        string(flow.Params.ResponseMode),
		Scope:               flow.Params.Scope,
		State:               flow.Params.State,
		CodeChallenge:       flow.Params.CodeChallenge,
		CodeChallengeMethod: string(flow.Params.CodeChallengeMethod),
		Nonce:               flow.Params.Nonce,
		CreatedAt:           flow.CreatedAt.Unix(),
		ExpiresAt:           flow.ExpiresAt.Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "[FlowRepo.Upsert] json.Marshal")
	}

	if err := r.client.Set(ctx, r.flowKey(flow.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "[FlowRepo.Upsert] client.Set")
	}
	return nil
}

func (r *FlowRepo) Get(ctx context.Context, flowID string) (*flowrepo.Flow, error) {
	if flowID == "" {
		return nil, flowrepo.ErrFlowNotFound
	}

	data, err := r.client.Get(ctx, r.flowKey(flowID)).Bytes()
	if err != nil {
		if stderrors.Is(err, rdb.Nil) {
			return nil, flowrepo.ErrFlowNotFound
		}
		return nil, errors.Wrap(err, "[FlowRepo.Get] client.Get")
	}

	var stored storedFlow
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[FlowRepo.Get] json.Unmarshal")
	}

	flow := flowrepo.Flow{
		ID:      stored.ID,
		Subject: stored.Subject,
		Params: &oauthmodel.AuthorizationParameters{
			ClientID:            stored.ClientID,
			ResponseType:        oauthmodel.ResponseType(stored.ResponseType),
			RedirectURI:         stored.RedirectURI,
			ResponseMode:        oauthmodel.ResponseModeType(stored.ResponseMode),
			Scope:               stored.Scope,
			State:               stored.State,
			CodeChallenge:       stored.CodeChallenge,
			CodeChallengeMethod: oauthmodel.CodeMethodType(stored.CodeChallengeMethod),
			Nonce:               stored.Nonce,
		},
		CreatedAt: time.Unix(stored.CreatedAt, 0),
		ExpiresAt: time.Unix(stored.ExpiresAt, 0),
	}
	// The stored expiry still counts even if Redis has not evicted the key,
	// covering clock skew between this server and Redis.
	if !r.nowFunc().Before(flow.ExpiresAt) {
		return nil, flowrepo.ErrFlowNotFound
	}
	return &flow, nil
}

// Delete is idempotent: removing an unknown flow is not an error.
func (r *FlowRepo) Delete(ctx context.Context, flowID string) error {
	if flowID == "" {
		return nil
	}
	if err := r.client.Del(ctx, r.flowKey(flowID)).Err(); err != nil {
		return errors.Wrap(err, "[FlowRepo.Delete] client.Del")
	}
	return nil
}

func (r *FlowRepo) flowKey(flowID string) string { return r.keyPrefix + "flow:" + flowID }

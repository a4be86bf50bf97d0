package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultLookupTimeout = 10 * time.Second

type lookupRequest struct {
	Roles           []string `json:"roles,omitempty"`
	CourseIDs       []string `json:"courseIds,omitempty"`
	ClassIDs        []string `json:"classIds,omitempty"`
	UserIDs         []string `json:"userIds,omitempty"`
	IncludeTeachers bool     `json:"includeTeachers,omitempty"`
}

type lookupMember struct {
	UserID    string            `json:"userId"`
	Role      string            `json:"role"`
	Locale    string            `json:"locale"`
	Endpoints map[string]string `json:"endpoints"`
}

type lookupResponse struct {
	Members []lookupMember `json:"members"`
}

// HTTPLookup resolves audience targeting against the school directory
// service over HTTP.
type HTTPLookup struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPLookup(baseURL string) (*HTTPLookup, error) {
	client := resty.New()
	client.SetTimeout(defaultLookupTimeout)
	client.SetRetryCount(0)

	return NewHTTPLookupWithClient(baseURL, client)
}

func NewHTTPLookupWithClient(baseURL string, client *resty.Client) (*HTTPLookup, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}

	return &HTTPLookup{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (l *HTTPLookup) MembersByRole(ctx context.Context, roles []string) ([]Member, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return l.lookup(ctx, "/v1/lookup/roles", lookupRequest{Roles: roles})
}

func (l *HTTPLookup) MembersByCourse(ctx context.Context, courseIDs []string, includeTeachers bool) ([]Member, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	return l.lookup(ctx, "/v1/lookup/courses", lookupRequest{
		CourseIDs:       courseIDs,
		IncludeTeachers: includeTeachers,
	})
}

func (l *HTTPLookup) MembersByClass(ctx context.Context, classIDs []string) ([]Member, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	return l.lookup(ctx, "/v1/lookup/classes", lookupRequest{ClassIDs: classIDs})
}

func (l *HTTPLookup) MembersByID(ctx context.Context, userIDs []string) ([]Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return l.lookup(ctx, "/v1/lookup/users", lookupRequest{UserIDs: userIDs})
}

func (l *HTTPLookup) lookup(ctx context.Context, path string, req lookupRequest) ([]Member, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lookup client is not initialized")
	}

	var parsed lookupResponse
	response, err := l.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&parsed).
		Post(l.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d: %s", response.StatusCode(), strings.TrimSpace(response.String()))
	}

	members := make([]Member, 0, len(parsed.Members))
	for _, m := range parsed.Members {
		if strings.TrimSpace(m.UserID) == "" {
			continue
		}
		members = append(members, toMember(m))
	}
	return members, nil
}

func toMember(m lookupMember) Member {
	endpoints := make(map[domain.Channel]string, len(m.Endpoints))
	for raw, endpoint := range m.Endpoints {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			continue
		}
		if strings.TrimSpace(endpoint) == "" {
			continue
		}
		endpoints[channel] = endpoint
	}

	return Member{
		UserID:    m.UserID,
		Role:      m.Role,
		Locale:    m.Locale,
		Endpoints: endpoints,
	}
}

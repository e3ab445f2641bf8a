package jira

import (
	"context"
	"errors"

	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/issue"
)

// Remote serves a Jira site to the hierarchy engine.
type Remote struct {
	client *Client
}

var _ hierarchy.Remote = (*Remote)(nil)

// NewRemote wraps client.
func NewRemote(client *Client) *Remote {
	return &Remote{client: client}
}

// Execute runs query as JQL.
func (r *Remote) Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	issues, err := r.client.SearchIssues(ctx, query)
	if err != nil {
		return nil, remoteError("execute", site, "", err)
	}
	out := make([]issue.Skeleton, len(issues))
	for i, ji := range issues {
		out[i] = r.client.ToSkeleton(ji, site.ID)
	}
	return out, nil
}

// FetchByKey fetches one issue. A 404 is reported as a not-found RemoteError.
func (r *Remote) FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	ji, err := r.client.GetIssue(ctx, key)
	if err != nil {
		return issue.Skeleton{}, remoteError("fetch", site, key, err)
	}
	return r.client.ToSkeleton(*ji, site.ID), nil
}

// ToSkeleton maps a Jira issue.
//
// The parent comes from fields.parent, except in team-managed projects
// where an epic is exposed as the parent; that case is mapped to the epic
// link. Epics with no epic name field use their summary.
func (c *Client) ToSkeleton(ji Issue, siteID string) issue.Skeleton {
	sk := issue.Skeleton{
		Key:      ji.Key,
		SiteID:   siteID,
		Summary:  ji.stringField("summary"),
		Type:     ji.namedField("issuetype"),
		Status:   ji.namedField("status"),
		Priority: ji.namedField("priority"),
		EpicLink: ji.stringField(c.epicLinkField),
		EpicName: ji.stringField(c.epicNameField),
	}

	var parent issueRef
	if ji.field("parent", &parent) && parent.Key != "" {
		if isEpicType(parent.typeName()) && !isEpicType(sk.Type) {
			if sk.EpicLink == "" {
				sk.EpicLink = parent.Key
			}
		} else {
			sk.ParentKey = parent.Key
		}
	}

	if sk.EpicName == "" && isEpicType(sk.Type) {
		sk.EpicName = sk.Summary
		if sk.EpicName == "" {
			sk.EpicName = sk.Key
		}
	}

	var subtasks []issueRef
	if ji.field("subtasks", &subtasks) {
		for _, st := range subtasks {
			child := issue.Skeleton{
				Key:       st.Key,
				ParentKey: ji.Key,
				SiteID:    siteID,
				Summary:   st.Fields.Summary,
				Type:      st.typeName(),
			}
			if st.Fields.Status != nil {
				child.Status = st.Fields.Status.Name
			}
			if st.Fields.Priority != nil {
				child.Priority = st.Fields.Priority.Name
			}
			sk.Children = append(sk.Children, child)
		}
	}
	return sk
}

func remoteError(op string, site issue.Site, key string, err error) error {
	re := &issue.RemoteError{Op: op, Site: site.ID, Key: key, Err: err}
	var he *HTTPError
	if errors.As(err, &he) {
		re.StatusCode = he.StatusCode
	}
	return re
}

package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/instrumentation"
)

// userID addresses the authenticated user.
const userID = "me"

// Client wraps the Gmail Users service for the authenticated user.
// It implements harvest.MailService.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

var _ harvest.MailService = (*Client)(nil)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	endpoint string
	metrics  *instrumentation.Metrics
}

// WithEndpoint overrides the Gmail API base URL (tests, proxies).
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithMetrics records API operation metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates a Gmail client on top of an authorized HTTP client,
// usually google.Session.HTTPClient().
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}

	svc, err := gmail.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{svc: svc.Users, metrics: o.metrics}, nil
}

// ListMessages returns one page of message IDs matching filter.
func (c *Client) ListMessages(ctx context.Context, filter string, pageSize int, cursor string) (harvest.Page, error) {
	var page harvest.Page
	err := c.do(ctx, instrumentation.OperationList, nil, func(ctx context.Context) error {
		req := c.svc.Messages.List(userID).
			Q(filter).
			MaxResults(int64(pageSize)).
			Fields("messages/id", "nextPageToken").
			Context(ctx)
		if cursor != "" {
			req = req.PageToken(cursor)
		}

		res, err := req.Do()
		if err != nil {
			return err
		}

		page.IDs = make([]string, 0, len(res.Messages))
		for _, m := range res.Messages {
			page.IDs = append(page.IDs, m.Id)
		}
		page.NextCursor = res.NextPageToken
		return nil
	})
	return page, err
}

// GetMessage fetches a message at full fidelity and returns its part tree.
func (c *Client) GetMessage(ctx context.Context, id string) (*harvest.Part, error) {
	var root *harvest.Part
	attrs := []attribute.KeyValue{attribute.String(instrumentation.SpanAttrMessageID, id)}
	err := c.do(ctx, instrumentation.OperationGetMessage, attrs, func(ctx context.Context) error {
		msg, err := c.svc.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		root = convertPart(msg.Payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

// GetAttachment returns the base64url-encoded payload of an attachment.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	if messageID == "" || attachmentID == "" {
		return "", fmt.Errorf("messageID and attachmentID are required")
	}

	var data string
	attrs := []attribute.KeyValue{attribute.String(instrumentation.SpanAttrMessageID, messageID)}
	err := c.do(ctx, instrumentation.OperationGetAttachment, attrs, func(ctx context.Context) error {
		body, err := c.svc.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
		if err != nil {
			return err
		}
		data = body.Data
		return nil
	})
	return data, err
}

// Profile returns the email address of the authenticated user.
func (c *Client) Profile(ctx context.Context) (string, error) {
	var email string
	err := c.do(ctx, instrumentation.OperationProfile, nil, func(ctx context.Context) error {
		p, err := c.svc.GetProfile(userID).Fields("emailAddress").Context(ctx).Do()
		if err != nil {
			return err
		}
		email = p.EmailAddress
		return nil
	})
	return email, err
}

// do runs one API call inside a span, records its metrics and classifies
// its error.
func (c *Client) do(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, op, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, op, status, time.Since(start))

	return classifyError(op, err)
}

// convertPart maps a Gmail payload tree onto harvest parts.
func convertPart(payload *gmail.MessagePart) *harvest.Part {
	if payload == nil {
		return nil
	}

	type pending struct {
		src *gmail.MessagePart
		dst *harvest.Part
	}

	root := &harvest.Part{}
	stack := []pending{{payload, root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		p.dst.PartID = p.src.PartId
		p.dst.Filename = p.src.Filename
		p.dst.ContentType = p.src.MimeType
		if p.src.Body != nil {
			p.dst.AttachmentID = p.src.Body.AttachmentId
			p.dst.Data = p.src.Body.Data
			p.dst.Size = p.src.Body.Size
		}

		for _, child := range p.src.Parts {
			if child == nil {
				continue
			}
			dst := &harvest.Part{}
			p.dst.Children = append(p.dst.Children, dst)
			stack = append(stack, pending{child, dst})
		}
	}
	return root
}

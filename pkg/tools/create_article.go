package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/entrhq/zhpublish/pkg/poster"
)

const (
	createArticleToolName = "create_article"
	loginToolName         = "login"

	// MinContentLength is the shortest body, in characters, the site accepts.
	MinContentLength = 9
)

// Publisher publishes one article. *poster.Poster implements it.
type Publisher interface {
	Publish(ctx context.Context, req poster.Request) poster.Response
}

// Authenticator establishes and saves a session. *poster.Poster implements it.
type Authenticator interface {
	Login(ctx context.Context) error
}

// ImageList decodes either a single path given as text
// (<images>a.png</images>) or one <image> child per path.
type ImageList []string

// UnmarshalXML implements xml.Unmarshaler.
func (l *ImageList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var text strings.Builder
	var children []string

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var v string
			if err := d.DecodeElement(&v, &t); err != nil {
				return err
			}
			if v = strings.TrimSpace(v); v != "" {
				children = append(children, v)
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) > 0 {
				*l = append(*l, children...)
			} else if s := strings.TrimSpace(text.String()); s != "" {
				*l = append(*l, s)
			}
			return nil
		}
	}
}

// CreateArticleInput is the argument set of create_article.
type CreateArticleInput struct {
	XMLName xml.Name  `xml:"arguments"`
	Title   string    `xml:"title"`
	Content string    `xml:"content"`
	Images  ImageList `xml:"images"`
	Topic   string    `xml:"topic"`
}

// CreateArticleTool publishes an article to the Zhihu column composer.
type CreateArticleTool struct {
	publisher Publisher
}

// NewCreateArticleTool creates the tool on top of publisher.
func NewCreateArticleTool(publisher Publisher) *CreateArticleTool {
	return &CreateArticleTool{publisher: publisher}
}

// Name returns the tool's identifier
func (t *CreateArticleTool) Name() string {
	return createArticleToolName
}

// Description returns a description of what this tool does
func (t *CreateArticleTool) Description() string {
	return "Publish an article to Zhihu. " +
		"The title is limited to 100 characters and longer titles are cut. " +
		"The content must be at least 9 characters. " +
		"images is an optional local cover image path (a single path or a list; only the first is used). " +
		"topic should name an existing Zhihu topic; when omitted the first 4 characters of the title are searched, which often finds nothing."
}

// Schema returns the JSON schema for the tool's arguments
func (t *CreateArticleTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Article title, at most 100 characters.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Article body, at least 9 characters.",
			},
			"images": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Local cover image path. A single path or <image> children.",
			},
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Existing topic to attach.",
			},
		},
		[]string{"title", "content"},
	)
}

// Execute publishes the article and returns "success" or "error: <message>".
func (t *CreateArticleTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input CreateArticleInput
	if err := UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments for %s: %w", createArticleToolName, err)
	}

	if strings.TrimSpace(input.Title) == "" {
		return "", nil, fmt.Errorf("title cannot be empty")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(input.Content)); n < MinContentLength {
		return "", nil, fmt.Errorf("content must be at least %d characters, got %d", MinContentLength, n)
	}

	resp := t.publisher.Publish(ctx, poster.Request{
		Title:   input.Title,
		Content: input.Content,
		Images:  []string(input.Images),
		Topic:   strings.TrimSpace(input.Topic),
	})

	metadata := map[string]interface{}{
		"steps":    resp.Result.Steps,
		"warnings": resp.Result.Warnings,
	}
	return resp.Text(), metadata, nil
}

// LoginTool runs the interactive login and saves the session.
type LoginTool struct {
	auth Authenticator
}

// NewLoginTool creates the tool on top of auth.
func NewLoginTool(auth Authenticator) *LoginTool {
	return &LoginTool{auth: auth}
}

// Name returns the tool's identifier
func (t *LoginTool) Name() string {
	return loginToolName
}

// Description returns a description of what this tool does
func (t *LoginTool) Description() string {
	return "Log in to Zhihu with an SMS verification code and save the session for later publishing."
}

// Schema returns the JSON schema for the tool's arguments
func (t *LoginTool) Schema() map[string]interface{} {
	return BaseToolSchema(map[string]interface{}{}, nil)
}

// Execute logs in and returns "success" or "error: <message>".
func (t *LoginTool) Execute(ctx context.Context, _ []byte) (string, map[string]interface{}, error) {
	if err := t.auth.Login(ctx); err != nil {
		return "error: " + err.Error(), nil, nil
	}
	return "success", nil, nil
}

package svc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"pastecap/pkg/domain"
)

// ISO-8601 in UTC with millisecond precision
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type ViewResp struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

func NewViewResp(v *domain.View) ViewResp {
	resp := ViewResp{
		Content:        v.Content,
		RemainingViews: v.RemainingViews,
	}
	if v.ExpiresAt != nil {
		s := v.ExpiresAt.UTC().Format(timeLayout)
		resp.ExpiresAt = &s
	}
	return resp
}

// html/template escapes & < > " ' in text context.
var pageTmpl = template.Must(template.New("paste").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Paste {{.ID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: white;
            border-radius: 8px;
            padding: 20px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        pre {
            background-color: #f8f8f8;
            border: 1px solid #e0e0e0;
            border-radius: 4px;
            padding: 15px;
            overflow-x: auto;
            white-space: pre-wrap;
            word-wrap: break-word;
        }
    </style>
</head>
<body>
    <div class="container">
        <pre>{{.Content}}</pre>
    </div>
</body>
</html>
`))

func Render(v *domain.View, mode domain.RenderMode) (*domain.Rendered, error) {
	switch mode {
	case domain.RenderJSON:
		body, err := json.Marshal(NewViewResp(v))
		if err != nil {
			return nil, err
		}
		return &domain.Rendered{Body: body, ContentType: "application/json"}, nil
	case domain.RenderHTML:
		var buf bytes.Buffer
		if err := pageTmpl.Execute(&buf, v); err != nil {
			return nil, err
		}
		return &domain.Rendered{Body: buf.Bytes(), ContentType: "text/html; charset=utf-8"}, nil
	}
	return nil, fmt.Errorf("unknown render mode %d", mode)
}

package httpx

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// DirectExecutor issues requests over the network via a standard
// *http.Client. It is the required transport variant; an optional
// headless-browser executor would implement the same Executor interface
// and additionally honor WaitForElement/WaitTimeoutMs.
type DirectExecutor struct {
	Client *http.Client
}

// NewDirectExecutor returns a DirectExecutor backed by client. If client is
// nil, http.DefaultClient is used.
func NewDirectExecutor(client *http.Client) *DirectExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &DirectExecutor{Client: client}
}

func (d *DirectExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	httpReq, err := d.buildRequest(ctx, req)
	if err != nil {
		return Response{}, &ResponseError{URL: req.URL, Message: err.Error()}
	}

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return Response{}, &ResponseError{URL: req.URL, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &ResponseError{URL: req.URL, Message: "reading response body: " + err.Error()}
	}

	headers := make([]Header, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, Header{Name: name, Value: v})
		}
	}

	return Response{Status: resp.StatusCode, Headers: headers, Data: data}, nil
}

func (d *DirectExecutor) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Parse, "parse_request_url", err)
	}

	if len(req.Params) > 0 {
		q := target.Query()
		for _, p := range req.Params {
			q.Add(p.Name, p.Value)
		}
		target.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	var contentType string
	if req.Body != nil {
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		for _, field := range req.Body.Form {
			switch field.Part.Kind {
			case FormPartText:
				if err := writer.WriteField(field.Name, field.Part.Text); err != nil {
					return nil, quelleerr.Wrap(quelleerr.IO, "encode_form_field", err)
				}
			case FormPartData:
				name := field.Part.Name
				if name == "" {
					name = field.Name
				}
				part, err := writer.CreateFormFile(field.Name, name)
				if err != nil {
					return nil, quelleerr.Wrap(quelleerr.IO, "create_form_file", err)
				}
				if _, err := part.Write(field.Part.Data); err != nil {
					return nil, quelleerr.Wrap(quelleerr.IO, "write_form_file", err)
				}
			}
		}
		if err := writer.Close(); err != nil {
			return nil, quelleerr.Wrap(quelleerr.IO, "close_multipart_writer", err)
		}
		bodyReader = buf
		contentType = writer.FormDataContentType()
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), target.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	return httpReq, nil
}

var _ Executor = (*DirectExecutor)(nil)

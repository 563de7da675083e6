package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devtoolbox/backend/internal/models"
)

// ConverterPath is the route of the conversion endpoint on a toolbox server.
const ConverterPath = "/api/image/converter"

// Client talks to a remote conversion endpoint. It satisfies the same
// Convert contract as Service: one request, one response, no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// gets a client with a five minute timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Convert posts data as multipart form field "file" with the options as
// sibling fields.
func (c *Client) Convert(ctx context.Context, name string, data []byte, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	body, contentType, err := buildForm(name, data, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ConverterPath, body)
	if err != nil {
		return nil, fmt.Errorf("creating conversion request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: conversion request: %v", ErrProcessing, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading conversion response: %v", ErrProcessing, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := ErrProcessing
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = ErrInvalidInput
		}
		return nil, fmt.Errorf("%w: server returned %d: %s", kind, resp.StatusCode, errorMessage(payload))
	}

	format := opts.Format
	if format == "" {
		format = models.DefaultFormat
	}
	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = models.ReplaceExtension(name, format.Extension())
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = format.ContentType()
	}

	return &Result{Data: payload, ContentType: ct, Filename: filename}, nil
}

func buildForm(name string, data []byte, opts Options) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}

	fields := map[string]string{}
	if opts.Format != "" {
		fields["format"] = string(opts.Format)
	}
	if opts.Quality > 0 {
		fields["quality"] = strconv.Itoa(opts.Quality)
	}
	if opts.Width > 0 {
		fields["width"] = strconv.Itoa(opts.Width)
	}
	if opts.Height > 0 {
		fields["height"] = strconv.Itoa(opts.Height)
	}
	if len(opts.Sizes) > 0 {
		sizes, _ := json.Marshal(opts.Sizes)
		fields["sizes"] = string(sizes)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the raw text.
func errorMessage(payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

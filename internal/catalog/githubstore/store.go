package githubstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/pkg/config"
)

const (
	defaultBaseURL              = "https://api.github.com"
	acceptHeader                = "application/vnd.github+json"
	responseBodyReadLimit int64 = 1024
)

// Store persists the catalog document as a JSON file in a GitHub repository
// via the Contents API. The file SHA doubles as the compare-and-swap version
// token; a stale SHA makes GitHub reject the PUT.
type Store struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	branch     string
	path       string
	token      string
}

// Option configures optional store behavior.
type Option func(*Store)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// New builds the Contents API store from catalog configuration.
func New(cfg config.CatalogConfig, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Owner) == "" || strings.TrimSpace(cfg.Repo) == "" {
		return nil, fmt.Errorf("catalog repo owner and name are required")
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("catalog document path is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	store := &Store{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		branch:     cfg.Branch,
		path:       strings.TrimLeft(cfg.Path, "/"),
		token:      cfg.Token,
	}
	if store.baseURL == "" {
		store.baseURL = defaultBaseURL
	}
	if store.branch == "" {
		store.branch = "main"
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store, nil
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Read fetches the catalog document and returns the file SHA as the version.
// A cache-busting ts query parameter plus no-store headers keep intermediate
// caches from serving a stale document after a commit.
func (s *Store) Read(ctx context.Context) ([]catalog.Product, string, error) {
	reqURL := fmt.Sprintf("%s?ref=%s&ts=%d", s.contentsURL(), url.QueryEscape(s.branch), time.Now().UnixNano())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build catalog read request: %w", err)
	}
	s.setHeaders(httpReq)
	httpReq.Header.Set("Cache-Control", "no-store")
	httpReq.Header.Set("Pragma", "no-cache")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("execute catalog read request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", s.statusError("catalog read", resp)
	}

	var contents contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&contents); err != nil {
		return nil, "", fmt.Errorf("decode catalog contents: %w", err)
	}

	raw, err := decodeContent(contents)
	if err != nil {
		return nil, "", err
	}

	var products []catalog.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, "", fmt.Errorf("unmarshal catalog document: %w", err)
	}
	if products == nil {
		products = []catalog.Product{}
	}

	return products, contents.SHA, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// WriteIfVersion commits the document with the expected SHA. GitHub answers
// 409 (or a sha-mismatch 422) when another writer got there first; that maps
// to catalog.ErrVersionConflict.
func (s *Store) WriteIfVersion(ctx context.Context, products []catalog.Product, expectedVersion, message string) (string, error) {
	if products == nil {
		products = []catalog.Product{}
	}
	doc, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal catalog document: %w", err)
	}

	payload := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(append(doc, '\n')),
		SHA:     expectedVersion,
		Branch:  s.branch,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal catalog commit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build catalog commit request: %w", err)
	}
	s.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute catalog commit request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var committed putResponse
		if err := json.NewDecoder(resp.Body).Decode(&committed); err != nil {
			return "", fmt.Errorf("decode catalog commit response: %w", err)
		}
		return committed.Content.SHA, nil

	case resp.StatusCode == http.StatusConflict:
		return "", catalog.ErrVersionConflict

	case resp.StatusCode == http.StatusUnprocessableEntity:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		if strings.Contains(strings.ToLower(string(msg)), "sha") {
			return "", catalog.ErrVersionConflict
		}
		return "", fmt.Errorf("catalog commit failed: status 422: %s", strings.TrimSpace(string(msg)))

	default:
		return "", s.statusError("catalog commit", resp)
	}
}

func (s *Store) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		s.baseURL,
		url.PathEscape(s.owner),
		url.PathEscape(s.repo),
		s.path,
	)
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *Store) statusError(operation string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return fmt.Errorf("%s failed: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func decodeContent(contents contentsResponse) ([]byte, error) {
	switch contents.Encoding {
	case "", "base64":
		cleaned := strings.ReplaceAll(contents.Content, "\n", "")
		raw, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("decode catalog content: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported catalog content encoding %q", contents.Encoding)
	}
}

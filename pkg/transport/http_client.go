package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/raywall/api-poller/json/path"
)

// DefaultTimeout é aplicado a toda chamada sem timeout explícito.
const DefaultTimeout = 30 * time.Second

const userAgent = "api-poller/1.0"

// Credentials representa o par do basic auth.
type Credentials struct {
	Username string
	Password string
}

// Request descreve uma chamada HTTP já resolvida.
type Request struct {
	Method    string
	URL       string
	Params    map[string]string
	Headers   map[string]string
	Body      interface{} // Estruturas viram JSON; []byte é enviado sem alteração
	BasicAuth *Credentials
	Verify    bool
	Timeout   time.Duration
}

// Response representa a resposta do endpoint.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	URL        string
	Duration   time.Duration
}

// Text devolve o corpo como string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON faz o parse do corpo preservando números como json.Number.
func (r *Response) JSON() (interface{}, error) {
	return path.Decode(r.Body)
}

// Parsed tenta JSON e cai para texto quando o corpo não é estruturado.
func (r *Response) Parsed() interface{} {
	if v, err := r.JSON(); err == nil {
		return v
	}
	return r.Text()
}

// IsError indica status >= 400.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// HTTPDoer é satisfeito por *http.Client (permite Mock).
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client executa chamadas com proxy e verificação TLS configuráveis.
type Client struct {
	secure   HTTPDoer
	insecure HTTPDoer
}

// NewClient cria o cliente. proxy vazio usa as variáveis HTTP(S)_PROXY do ambiente.
func NewClient(proxy string) (*Client, error) {
	proxyFn := http.ProxyFromEnvironment
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy inválido '%s': %w", proxy, err)
		}
		proxyFn = http.ProxyURL(u)
	}

	build := func(verify bool) *http.Client {
		return &http.Client{
			Transport: &http.Transport{
				Proxy:               proxyFn,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: !verify},
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{secure: build(true), insecure: build(false)}, nil
}

// NewClientWithDoer usa o mesmo HTTPDoer independente da flag verify.
func NewClientWithDoer(d HTTPDoer) *Client {
	return &Client{secure: d, insecure: d}
}

// Perform envia a requisição e lê todo o corpo da resposta.
// Status >= 400 não é erro de transporte: a resposta é devolvida normalmente.
func (c *Client) Perform(ctx context.Context, r Request) (*Response, error) {
	// 1. Timeout da chamada
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 2. URL + query params
	target, err := buildURL(r.URL, r.Params)
	if err != nil {
		return nil, err
	}

	// 3. Corpo
	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar request: %w", err)
	}

	// 4. Headers (User-Agent pode ser sobrescrito pela chamada)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.BasicAuth != nil {
		req.SetBasicAuth(r.BasicAuth.Username, r.BasicAuth.Password)
	}

	// 5. Executa
	doer := c.secure
	if !r.Verify {
		doer = c.insecure
	}

	start := time.Now()
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erro de conexão com %s: %w", r.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler resposta de %s: %w", r.URL, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		URL:        target,
		Duration:   time.Since(start),
	}, nil
}

func buildURL(raw string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("URL inválida '%s': %w", raw, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// encodeBody omite corpos vazios (nil, "", mapas e listas vazias).
func encodeBody(b interface{}) (io.Reader, error) {
	if isEmpty(b) {
		return nil, nil
	}
	if raw, ok := b.([]byte); ok {
		return bytes.NewReader(raw), nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("erro ao serializar body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func isEmpty(b interface{}) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	switch v.Kind() {
	case reflect.String, reflect.Map, reflect.Slice:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	}
	return false
}

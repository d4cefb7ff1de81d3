package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenRequestTimeout = 30 * time.Second

// NewOAuth2Fetcher cria a função de busca para o fluxo Client Credentials.
// As credenciais seguem no corpo do formulário (grant_type, client_id, client_secret).
func NewOAuth2Fetcher(cfg config.OAuthConf) TokenFetcher {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.Scope != "" {
		cc.Scopes = strings.Fields(cfg.Scope)
	}

	httpClient := &http.Client{
		Timeout: tokenRequestTimeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS()},
		},
	}

	return func(ctx context.Context) (string, time.Duration, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

		tok, err := cc.Token(ctx)
		if err != nil {
			return "", 0, fmt.Errorf("erro ao obter token oauth: %w", err)
		}
		if tok.AccessToken == "" {
			return "", 0, fmt.Errorf("access_token veio vazio")
		}

		// expires_in ausente: o Manager aplica o default
		var ttl time.Duration
		if !tok.Expiry.IsZero() {
			ttl = time.Until(tok.Expiry)
		}
		return tok.AccessToken, ttl, nil
	}
}

package processors

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/transport"
)

// splunkHEC envia os eventos ao HTTP Event Collector.
// Um evento vai como objeto JSON; vários vão concatenados, um por linha.
func (b *builtins) splunkHEC(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	hecURL := args.String("hec_url", "")
	token := args.String("token", "")
	if hecURL == "" || token == "" {
		return false, fmt.Errorf("splunk_hec exige 'hec_url' e 'token'")
	}

	recs, err := records(data)
	if err != nil {
		return false, err
	}
	if len(recs) == 0 {
		b.logger.Info().Str("endpoint", endpoint).Msg("Nenhum evento para enviar ao HEC")
		return true, nil
	}

	meta := map[string]interface{}{
		"sourcetype": args.String("sourcetype", "api_poller"),
		"source":     args.String("source", endpoint),
	}
	if index := args.String("index", ""); index != "" {
		meta["index"] = index
	}

	events := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		event := map[string]interface{}{"event": rec}
		for k, v := range meta {
			event[k] = v
		}
		events = append(events, event)
	}

	var body interface{}
	if len(events) == 1 {
		body = events[0]
	} else {
		parts := make([]string, 0, len(events))
		for _, e := range events {
			line, err := compactJSON(e)
			if err != nil {
				return false, err
			}
			parts = append(parts, line)
		}
		body = []byte(strings.Join(parts, "\n"))
	}

	resp, err := b.HTTP.Perform(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    hecURL,
		Headers: map[string]string{
			"Authorization":            "Splunk " + token,
			"Content-Type":             "application/json",
			"X-Splunk-Request-Channel": uuid.NewString(),
		},
		Body:   body,
		Verify: args.Bool("verify", true),
	})
	if err != nil {
		return false, fmt.Errorf("erro ao enviar ao Splunk HEC: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return false, fmt.Errorf("splunk HEC respondeu %d: %s", resp.StatusCode, resp.Text())
	}

	b.logger.Info().Int("events", len(events)).Str("endpoint", endpoint).Msg("Eventos enviados ao Splunk HEC")
	return true, nil
}

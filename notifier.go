package main

import (
	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
)

// Notifier posts admission lifecycle events to an optional upstream
// webhook. Fire and forget: failures are logged, never escalated back
// into the admission path.
type Notifier struct {
	httpClient *req.Client
	url        string
	logger     *zap.SugaredLogger
}

func ProvideNotifier(httpClient *req.Client, cfg *config.Config, loggerFactory *infra.LoggerFactory) *Notifier {
	return &Notifier{
		httpClient: httpClient,
		url:        *cfg.WebhookURL,
		logger:     loggerFactory.Create("Notifier").Sugar(),
	}
}

type webhookEvent struct {
	Event  string `json:"event"`
	Seat   string `json:"seat,omitempty"`
	ConnID string `json:"connId"`
	Detail string `json:"detail,omitempty"`
}

func (n *Notifier) Admitted(seatLabel, connID string) {
	n.post(&webhookEvent{Event: "admitted", Seat: seatLabel, ConnID: connID})
}

func (n *Notifier) Evicted(detail, connID string) {
	n.post(&webhookEvent{Event: "evicted", Detail: detail, ConnID: connID})
}

func (n *Notifier) post(event *webhookEvent) {
	if n.url == "" {
		return
	}
	go func() {
		resp, err := n.httpClient.R().
			SetHeader("Content-Type", "application/json").
			SetBody(event).
			Post(n.url)
		if err != nil {
			n.logger.Errorf("webhook request failed %v", err)
			return
		}
		if resp.IsError() {
			n.logger.Errorf("webhook request failed with status[%v]", resp.Status)
		}
	}()
}

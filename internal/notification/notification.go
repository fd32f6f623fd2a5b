/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/sirupsen/logrus"
)

// Alerter raises operator alerts for failures that need a human, such as a
// refund that could not be sent.
type Alerter struct {
	webhookURL string
	client     *http.Client
}

func NewAlerter(webhookURL string, timeout time.Duration) *Alerter {
	return &Alerter{webhookURL: webhookURL, client: &http.Client{Timeout: timeout}}
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildMessage(title string, alertErr error, fields map[string]string, at time.Time) slackMessage {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	details := []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", alertErr)}}
	for _, k := range keys {
		details = append(details, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, fields[k])})
	}

	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
		{Type: "section", Fields: details},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
	}}
}

// Send posts the alert to slack. Without a webhook it only logs.
func (a *Alerter) Send(ctx context.Context, title string, alertErr error, fields map[string]string) error {
	logrus.WithFields(toLogFields(fields)).WithError(alertErr).Error(title)
	if a == nil || a.webhookURL == "" {
		return nil
	}

	payload, err := request.ToJsonReq(buildMessage(title, alertErr, fields, time.Now()))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, payload)
	if err != nil {
		return err
	}

	// slack answers with a plain "ok"
	_, err = request.Call(a.client, req, nil)
	return err
}

func toLogFields(fields map[string]string) logrus.Fields {
	out := logrus.Fields{}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

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

package gridbroker

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFiles embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// expiryLayout renders expiry dates as day/month/year.
const expiryLayout = "02/01/06"

const (
	SubjectExtended      = "Reservation extended"
	SubjectExtendFailed  = "Extending reservation failed"
	SubjectInstallFailed = "Reservation failed"
)

var installSubjects = map[model.ResourceKind]string{
	model.KindVM:           "Your virtual 0-OS is ready on the Threefold grid",
	model.KindS3:           "Your S3 archive server is ready on the Threefold grid",
	model.KindNamespace:    "Your 0-DB namespace is ready on the Threefold grid",
	model.KindReverseProxy: "Your reverse proxy is ready on the Threefold grid",
}

type installView struct {
	ReservationID string
	Kind          model.ResourceKind
	Expiry        string
	Zerotier      string
	Info          model.ConnectionInfo
}

type extendView struct {
	ReservationID string
	TxID          string
	Kind          model.ResourceKind
	Expiry        string
}

type failureView struct {
	Action       string
	Type         string
	TxID         string
	Error        string
	Address      string
	Refunded     bool
	RefundFailed bool
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// InstalledEmail builds the message sent once a deployment is running.
func InstalledEmail(result *InstallResult) (string, string, error) {
	r := result.Reservation
	view := installView{
		ReservationID: r.ID,
		Kind:          r.Kind,
		Expiry:        r.Expiry().Format(expiryLayout),
		Zerotier:      zerotierNetwork,
	}
	name := "pending.html"
	if result.Info != nil {
		view.Info = *result.Info
		name = string(r.Kind) + ".html"
	}
	html, err := render(name, view)
	if err != nil {
		return "", "", err
	}
	return installSubjects[r.Kind], html, nil
}

func ExtendedEmail(order *model.Order, result *ExtendResult) (string, string, error) {
	html, err := render("extended.html", extendView{
		ReservationID: result.Reservation.ID,
		TxID:          order.TxID,
		Kind:          result.Reservation.Kind,
		Expiry:        result.Expiry.Format(expiryLayout),
	})
	if err != nil {
		return "", "", err
	}
	return SubjectExtended, html, nil
}

func FailureEmail(tx model.Transaction, order *model.Order, cause error, refundStatus string) (string, string, error) {
	view := failureView{
		Action:       "complete",
		Type:         "reservation",
		TxID:         tx.ID,
		Error:        cause.Error(),
		Address:      tx.RefundAddress(),
		Refunded:     refundStatus == model.RefundSent,
		RefundFailed: refundStatus == model.RefundFailed,
	}
	subject := SubjectInstallFailed
	if order.Kind == model.KindExtension {
		view.Action, view.Type = "extend", "extension"
		subject = SubjectExtendFailed
	}
	html, err := render("failed.html", view)
	if err != nil {
		return "", "", err
	}
	return subject, html, nil
}

// deliver hands one email to the notifier. Orders without an email address
// only get a log line.
func (b *Broker) deliver(ctx context.Context, order *model.Order, category, subject, html string) {
	log := logrus.WithFields(logrus.Fields{"tx_id": order.TxID, "category": category})
	if order.Email == "" {
		log.Warn("order has no email address, skipping notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := b.notifier.Notify(ctx, model.Email{
		From:     b.config.Email.Sender,
		To:       order.Email,
		Subject:  subject,
		HTML:     html,
		Category: category,
		TxID:     order.TxID,
	})
	if err != nil {
		log.WithError(err).Error("failed to send notification")
		return
	}
	log.Info("notification queued")
}

func (b *Broker) notifyInstalled(ctx context.Context, order *model.Order, result *InstallResult) {
	subject, html, err := InstalledEmail(result)
	if err != nil {
		logrus.WithField("tx_id", order.TxID).WithError(err).Error("failed to render email")
		return
	}
	b.deliver(ctx, order, fmt.Sprintf("%s_installed", order.Kind), subject, html)
}

func (b *Broker) notifyExtended(ctx context.Context, order *model.Order, result *ExtendResult) {
	subject, html, err := ExtendedEmail(order, result)
	if err != nil {
		logrus.WithField("tx_id", order.TxID).WithError(err).Error("failed to render email")
		return
	}
	b.deliver(ctx, order, "extended", subject, html)
}

func (b *Broker) notifyFailure(ctx context.Context, tx model.Transaction, order *model.Order, cause error, refundStatus string) {
	subject, html, err := FailureEmail(tx, order, cause, refundStatus)
	if err != nil {
		logrus.WithField("tx_id", tx.ID).WithError(err).Error("failed to render email")
		return
	}
	b.deliver(ctx, order, "failed", subject, html)
}

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

// Package robot drives the orchestration robot that creates grid services.
package robot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

var templates = map[model.ResourceKind]string{
	model.KindVM:           "github.com/threefoldtech/0-templates/dm_vm/0.0.1",
	model.KindS3:           "github.com/threefoldtech/0-templates/s3/0.0.1",
	model.KindNamespace:    "github.com/threefoldtech/0-templates/namespace/0.0.1",
	model.KindReverseProxy: "github.com/threefoldtech/0-templates/reverse_proxy/0.0.1",
}

const (
	robotPort = 6600
	zosPort   = 6379
)

type Client struct {
	http *request.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: request.NewClient(baseURL, timeout)}
}

type serviceRequest struct {
	Template string             `json:"template"`
	Name     string             `json:"name"`
	Data     model.ResourceSpec `json:"data"`
}

type serviceResponse struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Install finds or creates the service named after the spec and runs its
// install action to completion. The returned handle is the service name.
func (c *Client) Install(ctx context.Context, spec model.ResourceSpec) (string, error) {
	template, ok := templates[spec.Kind]
	if !ok {
		return "", brokererror.Newf(brokererror.ErrUnknownKind, "no robot template for %q", spec.Kind)
	}

	created := serviceResponse{}
	_, err := c.http.Do(ctx, http.MethodPost, "/services", nil, serviceRequest{Template: template, Name: spec.Name, Data: spec}, &created)
	if err != nil {
		return "", brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to create %s service %s", spec.Kind, spec.Name), err)
	}
	name := created.Name
	if name == "" {
		name = spec.Name
	}

	_, err = c.http.Do(ctx, http.MethodPost, servicePath(name, "install"), nil, nil, nil)
	if err != nil {
		return "", brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to install %s service %s", spec.Kind, name), err)
	}

	logrus.WithFields(logrus.Fields{"service": name, "kind": spec.Kind, "node_id": spec.NodeID}).Info("robot service installed")
	return name, nil
}

// serviceInfo is the union of the info actions of every template.
type serviceInfo struct {
	Zerotier struct {
		IP string `json:"ip"`
	} `json:"zerotier"`
	Host struct {
		PublicAddr string `json:"public_addr"`
	} `json:"host"`
	VNC int `json:"vnc"`

	URLs     []string `json:"urls"`
	Domain   string   `json:"domain"`
	Login    string   `json:"login"`
	Password string   `json:"password"`

	IP     string `json:"ip"`
	Port   int    `json:"port"`
	NsName string `json:"nsName"`
}

func (c *Client) Info(ctx context.Context, service model.CreatedService) (*model.ConnectionInfo, error) {
	info := serviceInfo{}
	_, err := c.http.Do(ctx, http.MethodGet, servicePath(service.Handle, "info"), nil, nil, &info)
	if err != nil {
		if request.IsNotFound(err) {
			return nil, brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("service %s not found", service.Handle), err)
		}
		return nil, brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to get info of service %s", service.Handle), err)
	}
	return toConnectionInfo(service.Backend, info), nil
}

func toConnectionInfo(kind model.ResourceKind, info serviceInfo) *model.ConnectionInfo {
	ci := &model.ConnectionInfo{Kind: kind}
	switch kind {
	case model.KindVM:
		ip := info.Zerotier.IP
		ci.RobotURL = fmt.Sprintf("http://%s:%d", ip, robotPort)
		ci.ZosAddr = fmt.Sprintf("%s:%d", ip, zosPort)
		ci.VNCAddr = fmt.Sprintf("%s:%d", info.Host.PublicAddr, info.VNC)
	case model.KindS3:
		ci.URLs = info.URLs
		ci.Domain = info.Domain
		ci.Login = info.Login
		ci.Password = info.Password
	case model.KindNamespace:
		ci.IP = info.IP
		ci.Port = info.Port
		ci.Password = info.Password
		ci.Namespace = info.NsName
	case model.KindReverseProxy:
		ci.Domain = info.Domain
		ci.IP = info.IP
	}
	return ci
}

// Uninstall removes the service. A service the robot does not know returns
// a NOT_FOUND error.
func (c *Client) Uninstall(ctx context.Context, service model.CreatedService) error {
	_, err := c.http.Do(ctx, http.MethodPost, servicePath(service.Handle, "uninstall"), nil, nil, nil)
	if err != nil {
		if request.IsNotFound(err) {
			return brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("service %s not found", service.Handle), err)
		}
		return brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to uninstall service %s", service.Handle), err)
	}

	_, err = c.http.Do(ctx, http.MethodDelete, "/services/"+url.PathEscape(service.Handle), nil, nil, nil)
	if err != nil && !request.IsNotFound(err) {
		return brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to delete service %s", service.Handle), err)
	}
	return nil
}

func servicePath(name, action string) string {
	return "/services/" + url.PathEscape(name) + "/" + action
}

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

package api

import (
	"net/http"

	"github.com/blnkfinance/gridbroker"
	"github.com/blnkfinance/gridbroker/api/middleware"
	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	broker *gridbroker.Broker
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/reservations/:id", a.GetReservation)
	router.GET("/reservations/:id/connection-info", a.GetConnectionInfo)
	router.POST("/reservations/:id/cleanup", a.CleanupReservation)

	router.GET("/transactions/:id", a.GetTransaction)
	router.POST("/watch", a.TriggerWatch)
	return a.router
}

func NewAPI(b *gridbroker.Broker, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(otelgin.Middleware("gridbroker"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{broker: b, router: r}
}

func respondError(c *gin.Context, err error) {
	c.JSON(brokererror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

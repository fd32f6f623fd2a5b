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

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/blnkfinance/gridbroker/config"
	"github.com/gin-gonic/gin"
)

// KeyHeader carries the operator secret on every protected request.
const KeyHeader = "X-Broker-Key"

// openPaths are served without a key so load balancers can probe health.
var openPaths = map[string]bool{
	"/": true,
}

// SecretKeyAuthMiddleware guards the operator API with the configured
// server secret.
//
// Responses:
// - 401 Unauthorized: the key header is missing or does not match.
// - 500 Internal Server Error: no secret is configured.
func SecretKeyAuthMiddleware(conf *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if openPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if conf.Server.SecretKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		key := extractKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required. Use X-Broker-Key header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
			return
		}

		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	return c.GetHeader(KeyHeader)
}

// Copyright 2026 The MarchProxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Actions recorded by the authorization engine
const (
	ActionRoleDefined     = "define"
	ActionRoleDeactivated = "deactivate"
	ActionRoleAssigned    = "assign"
	ActionRoleRevoked     = "revoke"
)

// Event represents a role or assignment mutation. Events are appended to the
// audit sink; the engine never queries audit history itself.
type Event struct {
	Actor       string
	Action      string
	PrincipalID string
	RoleName    string
	Scope       string
	ResourceID  string
	Metadata    map[string]any
	Timestamp   time.Time
}

// Logger defines the interface for the append-only audit sink
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("actor", event.Actor),
		slog.String("action", event.Action),
		slog.String("principal_id", event.PrincipalID),
		slog.String("role_name", event.RoleName),
		slog.String("scope", event.Scope),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			// Redact secrets
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	lowered := strings.ToLower(key)
	markers := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

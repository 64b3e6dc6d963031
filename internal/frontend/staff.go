package frontend

import (
	"encoding/json"
	"fmt"

	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

func staffProfile() Profile {
	return Profile{
		Name:         "staff",
		CacheVersion: "ty7-staff-v2.0.0",
		Assets: []string{
			"/",
			"/index.html",
			"/css/app.css",
			"/css/mobile.css",
			"/css/components.css",
			"/css/themes.css",
			"/js/app.js",
			"/js/auth.js",
			"/js/agents.js",
			"/js/finance.js",
			"/js/tasks.js",
			"/js/reports.js",
			"/js/notifications.js",
			"/js/api.js",
			"/components/modals.js",
			"/components/forms.js",
			"/components/charts.js",
			"/manifest.json",
			"/assets/icons/icon-192x192.png",
			"/assets/icons/icon-512x512.png",
			cdnFontAwesome,
			"https://cdn.jsdelivr.net/npm/chart.js",
		},
		OfflinePages:         []string{"/offline.html"},
		SkipWaitingOnInstall: true,
		QueueVersion:         1,
		Categories: []Category{
			{
				Name:   "operations",
				Stored: true,
				PayloadSchema: `{
					"type": "object",
					"required": ["url"],
					"properties": {
						"url": {"type": "string", "minLength": 1},
						"method": {"type": "string"},
						"headers": {"type": "object", "additionalProperties": {"type": "string"}},
						"body": {"type": ["string", "null"]}
					}
				}`,
			},
			{
				Name:    "agents",
				Method:  "POST",
				Path:    "/api/agents",
				Body:    syncer.JSONField("data"),
				Tag:     "agent-creation",
				Message: "SYNC_AGENTS",
				PayloadSchema: `{
					"type": "object",
					"required": ["data"],
					"properties": {
						"data": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string", "minLength": 1}}}
					}
				}`,
				Success: agentCreated,
			},
			{
				Name:    "approvals",
				Method:  "POST",
				Path:    "/api/approvals/{id}/{action}",
				Body:    syncer.JSONField("data"),
				Tag:     "approval-actions",
				Message: "SYNC_APPROVALS",
				PayloadSchema: `{
					"type": "object",
					"required": ["action"],
					"properties": {
						"action": {"enum": ["approve", "reject"]},
						"data": {"type": "object"}
					}
				}`,
				Success: approvalProcessed,
			},
		},
		Notify: notify.Policy{
			DefaultTitle: "7tỷ.vn Staff",
			DefaultBody:  "Bạn có thông báo mới",
			DefaultTag:   "default",
			Icon:         iconPath,
			Badge:        badgePath,
			Vibrate:      []int{100, 50, 100},
			ActionSets: map[string][]notify.Action{
				notify.DefaultActionSet: {
					{ID: "open", Title: "Xem chi tiết", Icon: "/assets/icons/open.png"},
					dismissAction,
				},
			},
			DismissActions: []string{"dismiss"},
			Focus:          notify.FocusExactURL,
		},
	}
}

func agentCreated(detail json.RawMessage) (notify.Copy, error) {
	var p struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := decodeDetail(detail, &p); err != nil {
		return notify.Copy{}, fmt.Errorf("decode agent: %w", err)
	}
	return notify.Copy{
		Title: "Tạo đại lý thành công",
		Body:  fmt.Sprintf("Đại lý %s đã được tạo thành công", p.Data.Name),
		Tag:   "agent-created",
	}, nil
}

func approvalProcessed(detail json.RawMessage) (notify.Copy, error) {
	var p struct {
		Action string `json:"action"`
	}
	if err := decodeDetail(detail, &p); err != nil {
		return notify.Copy{}, fmt.Errorf("decode approval: %w", err)
	}
	actionText := "từ chối"
	if p.Action == "approve" {
		actionText = "phê duyệt"
	}
	return notify.Copy{
		Title: actionText + " thành công",
		Body:  "Yêu cầu đã được " + actionText,
		Tag:   "approval-processed",
	}, nil
}

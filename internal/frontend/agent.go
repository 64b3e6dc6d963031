package frontend

import (
	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

func agentProfile() Profile {
	return Profile{
		Name:         "agent",
		CacheVersion: "ty7-agent-v2.0.0",
		Assets: []string{
			"/",
			"/index.html",
			"/css/app.css",
			"/css/mobile.css",
			"/css/components.css",
			"/js/app.js",
			"/js/auth.js",
			"/js/wallet.js",
			"/js/scanner.js",
			"/js/bills.js",
			"/js/api.js",
			"/manifest.json",
			"/assets/icons/icon-192x192.png",
			"/assets/icons/icon-512x512.png",
			cdnFontAwesome,
		},
		QueueVersion: 1,
		Categories: []Category{
			{
				Name:          "transactions",
				Method:        "POST",
				Path:          "/api/transactions/sync",
				Body:          syncer.JSONEntry(),
				Message:       "SYNC_TRANSACTIONS",
				PayloadSchema: `{"type":"object"}`,
			},
		},
		Notify: notify.Policy{
			DefaultTitle: "7tỷ.vn",
			DefaultBody:  "Bạn có thông báo mới từ 7tỷ.vn",
			Icon:         iconPath,
			Badge:        badgePath,
			Vibrate:      []int{100, 50, 100},
			ActionSets: map[string][]notify.Action{
				notify.DefaultActionSet: {
					{ID: "explore", Title: "Xem chi tiết", Icon: "/assets/icons/checkmark.png"},
					{ID: "close", Title: "Đóng", Icon: "/assets/icons/xmark.png"},
				},
			},
			ClickRoutes:    map[string]string{"explore": "/"},
			DismissActions: []string{"close"},
			Focus:          notify.FocusNavigateAny,
		},
	}
}
